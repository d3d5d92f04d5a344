package events

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/kiosk-backend/pkg/mongodb"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "events"

// Repository exposes persistence helpers for events.
type Repository interface {
	Create(ctx context.Context, event *Event) error
	Get(ctx context.Context, id uuid.UUID) (*Event, error)
	ListByOrg(ctx context.Context, orgGuid string) ([]Event, error)
	AddParticipant(ctx context.Context, eventID, personID uuid.UUID) error
	IsParticipant(ctx context.Context, eventID, personID uuid.UUID) (bool, error)
	IsManager(ctx context.Context, eventID, personID uuid.UUID) (bool, error)
}

var errNotFound = errors.New("event not found")

type repositoryImpl struct {
	collection *mongo.Collection
}

// NewRepository returns an events repository bound to the provided database.
func NewRepository(client *mongodb.Client) Repository {
	return &repositoryImpl{collection: client.Collection(collectionName)}
}

func (r *repositoryImpl) Create(ctx context.Context, event *Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Participants == nil {
		event.Participants = []uuid.UUID{}
	}
	_, err := r.collection.InsertOne(ctx, event)
	return err
}

func (r *repositoryImpl) Get(ctx context.Context, id uuid.UUID) (*Event, error) {
	var event Event
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&event)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repositoryImpl) ListByOrg(ctx context.Context, orgGuid string) ([]Event, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"org_guid": orgGuid}, options.Find().SetSort(bson.D{{Key: "start_date", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	events := []Event{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repositoryImpl) AddParticipant(ctx context.Context, eventID, personID uuid.UUID) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": eventID},
		bson.M{"$addToSet": bson.M{"participants": personID}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return errNotFound
	}
	return nil
}

func (r *repositoryImpl) IsParticipant(ctx context.Context, eventID, personID uuid.UUID) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, participantQuery(eventID, personID))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repositoryImpl) IsManager(ctx context.Context, eventID, personID uuid.UUID) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, managerQuery(eventID, personID))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func participantQuery(eventID, personID uuid.UUID) bson.M {
	return bson.M{"_id": eventID, "participants": personID}
}

func managerQuery(eventID, personID uuid.UUID) bson.M {
	return bson.M{"_id": eventID, "manager_id": personID}
}
