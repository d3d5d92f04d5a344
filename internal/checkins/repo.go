package checkins

import (
	"context"
	"time"

	"github.com/angelmondragon/kiosk-backend/pkg/enums"
	"github.com/angelmondragon/kiosk-backend/pkg/mongodb"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "checkins"

// Repository exposes persistence helpers for check-ins.
type Repository interface {
	Create(ctx context.Context, checkin *Checkin) error
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]Checkin, error)
	FindActive(ctx context.Context, eventID, personID uuid.UUID) (*Checkin, error)
	Stats(ctx context.Context, eventID uuid.UUID) (*Stats, error)
}

type repositoryImpl struct {
	collection *mongo.Collection
}

// NewRepository returns a check-ins repository bound to the provided database.
func NewRepository(client *mongodb.Client) Repository {
	return &repositoryImpl{collection: client.Collection(collectionName)}
}

func (r *repositoryImpl) Create(ctx context.Context, checkin *Checkin) error {
	if checkin.ID == uuid.Nil {
		checkin.ID = uuid.New()
	}
	if checkin.CheckedInAt.IsZero() {
		checkin.CheckedInAt = time.Now().UTC()
	}
	_, err := r.collection.InsertOne(ctx, checkin)
	return err
}

func (r *repositoryImpl) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]Checkin, error) {
	cursor, err := r.collection.Find(ctx,
		bson.M{"event_id": eventID},
		options.Find().SetSort(bson.D{{Key: "checked_in_at", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	checkins := []Checkin{}
	if err := cursor.All(ctx, &checkins); err != nil {
		return nil, err
	}
	return checkins, nil
}

func (r *repositoryImpl) FindActive(ctx context.Context, eventID, personID uuid.UUID) (*Checkin, error) {
	var checkin Checkin
	err := r.collection.FindOne(ctx, activeQuery(eventID, personID)).Decode(&checkin)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &checkin, nil
}

func (r *repositoryImpl) Stats(ctx context.Context, eventID uuid.UUID) (*Stats, error) {
	cursor, err := r.collection.Aggregate(ctx, statsPipeline(eventID))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status enums.CheckinStatus `bson:"_id"`
		Count  int64               `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	stats := &Stats{
		EventID:  eventID,
		ByStatus: map[enums.CheckinStatus]int64{},
	}
	for _, row := range rows {
		stats.ByStatus[row.Status] = row.Count
		if row.Status != enums.CheckinStatusCanceled {
			stats.Total += row.Count
		}
	}
	return stats, nil
}

func activeQuery(eventID, personID uuid.UUID) bson.M {
	return bson.M{
		"event_id":  eventID,
		"person_id": personID,
		"status":    bson.M{"$ne": enums.CheckinStatusCanceled},
	}
}

func statsPipeline(eventID uuid.UUID) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"event_id": eventID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}
}
