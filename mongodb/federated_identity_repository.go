package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pulseplan.io/auth/domain"
)

// ErrIdentityNotFound is returned when no federated identity matches.
var ErrIdentityNotFound = errors.New("federated identity not found")

// FederatedIdentityRepository implements domain.FederatedIdentityRepository.
type FederatedIdentityRepository struct {
	coll *mongo.Collection
}

func NewFederatedIdentityRepository(ctx context.Context, db *mongo.Database) (*FederatedIdentityRepository, error) {
	repo := &FederatedIdentityRepository{
		coll: db.Collection(FederatedIdentitiesCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create federated identity indexes (may already exist)")
	}
	return repo, nil
}

func (r *FederatedIdentityRepository) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			// One external identity links to at most one local user.
			Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "provider_user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	}
	_, err := r.coll.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create indexes for federated identities collection: %w", err)
	}
	return nil
}

func (r *FederatedIdentityRepository) GetByProviderUserID(ctx context.Context, provider, providerUserID string) (*domain.FederatedIdentity, error) {
	var identity domain.FederatedIdentity
	err := r.coll.FindOne(ctx, bson.M{
		"provider":         provider,
		"provider_user_id": providerUserID,
	}).Decode(&identity)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve federated identity: %w", err)
	}
	return &identity, nil
}

func (r *FederatedIdentityRepository) SaveIdentity(ctx context.Context, identity *domain.FederatedIdentity) error {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, identity)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("federated identity already linked: %w", err)
		}
		return fmt.Errorf("failed to save federated identity: %w", err)
	}
	return nil
}
