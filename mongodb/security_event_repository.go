package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pulseplan.io/auth/domain"
)

// SecurityEventRepository stores the append-only audit log. Events are
// only ever inserted, counted and listed.
type SecurityEventRepository struct {
	coll *mongo.Collection
}

func NewSecurityEventRepository(db *mongo.Database) *SecurityEventRepository {
	return &SecurityEventRepository{
		coll: db.Collection(SecurityEventsCollection),
	}
}

func (r *SecurityEventRepository) InsertEvent(ctx context.Context, event *domain.SecurityEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.EventType)).Msg("Error inserting security event")
		return fmt.Errorf("failed to insert security event: %w", err)
	}
	return nil
}

func (r *SecurityEventRepository) CountEvents(ctx context.Context, userID string, eventType domain.SecurityEventType, success bool, createdAfter time.Time) (int64, error) {
	filter := bson.M{
		"user_id":    userID,
		"event_type": eventType,
		"success":    success,
		"created_at": bson.M{"$gte": createdAfter},
	}
	count, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count security events: %w", err)
	}
	return count, nil
}

func (r *SecurityEventRepository) ListEventsByUser(ctx context.Context, userID string, limit int64) ([]domain.SecurityEvent, error) {
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(limit)

	cursor, err := r.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list security events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []domain.SecurityEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode security events: %w", err)
	}
	return events, nil
}
