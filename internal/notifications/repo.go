package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/kiosk-backend/pkg/enums"
	"github.com/angelmondragon/kiosk-backend/pkg/mongodb"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionName         = "notifications"
	lastSeenCollectionName = "notification_last_seen"
)

var errNotFound = errors.New("notification not found")

// ListFilter narrows the notification feed for one person.
type ListFilter struct {
	PersonID uuid.UUID
	OrgGuid  string
	Type     enums.NotificationType
	EventID  *uuid.UUID
	After    *time.Time
	Limit    int
	Page     int
}

// Repository exposes persistence helpers for notifications.
type Repository interface {
	Insert(ctx context.Context, notification *Notification) error
	Get(ctx context.Context, id uuid.UUID) (*Notification, error)
	List(ctx context.Context, filter ListFilter) ([]Notification, error)
	GetLastSeen(ctx context.Context, personID uuid.UUID, orgGuid string) (*LastSeen, error)
	UpsertLastSeen(ctx context.Context, personID uuid.UUID, orgGuid string, date time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	notifications *mongo.Collection
	lastSeen      *mongo.Collection
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(client *mongodb.Client) Repository {
	return &repositoryImpl{
		notifications: client.Collection(collectionName),
		lastSeen:      client.Collection(lastSeenCollectionName),
	}
}

func (r *repositoryImpl) Insert(ctx context.Context, notification *Notification) error {
	_, err := r.notifications.InsertOne(ctx, notification)
	return err
}

func (r *repositoryImpl) Get(ctx context.Context, id uuid.UUID) (*Notification, error) {
	var notification Notification
	err := r.notifications.FindOne(ctx, bson.M{"_id": id}).Decode(&notification)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *repositoryImpl) List(ctx context.Context, filter ListFilter) ([]Notification, error) {
	cursor, err := r.notifications.Find(ctx, listQuery(filter), listOptions(filter))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := []Notification{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repositoryImpl) GetLastSeen(ctx context.Context, personID uuid.UUID, orgGuid string) (*LastSeen, error) {
	var watermark LastSeen
	err := r.lastSeen.FindOne(ctx, lastSeenQuery(personID, orgGuid)).Decode(&watermark)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &watermark, nil
}

func (r *repositoryImpl) UpsertLastSeen(ctx context.Context, personID uuid.UUID, orgGuid string, date time.Time) error {
	_, err := r.lastSeen.UpdateOne(ctx,
		lastSeenQuery(personID, orgGuid),
		bson.M{"$set": bson.M{"last_seen_date": date.UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *repositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.notifications.DeleteMany(ctx, bson.M{"date_posted": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// listQuery matches notifications addressed to the person directly or
// broadcast to the whole organization.
func listQuery(filter ListFilter) bson.M {
	query := bson.M{
		"org_guid":     filter.OrgGuid,
		"message.type": filter.Type,
		"$or": bson.A{
			bson.M{"recipient_id": filter.PersonID},
			bson.M{"recipient_id": nil},
		},
	}
	if filter.EventID != nil {
		query["event_id"] = *filter.EventID
	}
	if filter.After != nil {
		query["date_posted"] = bson.M{"$gte": *filter.After}
	}
	return query
}

// listOptions sorts oldest-first and pages only when a limit is present.
func listOptions(filter ListFilter) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "date_posted", Value: 1}})
	if filter.Limit > 0 {
		opts = opts.SetSkip(int64(filter.Limit * filter.Page)).SetLimit(int64(filter.Limit))
	}
	return opts
}

func lastSeenQuery(personID uuid.UUID, orgGuid string) bson.M {
	return bson.M{"person_id": personID, "org_guid": orgGuid}
}
