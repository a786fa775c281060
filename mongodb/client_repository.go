package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"go.pulseplan.io/auth/domain"
	serrors "go.pulseplan.io/auth/errors"
)

// ClientRepository reads registered OAuth clients. Client registration
// is owned by the wider backend; this service only looks them up.
type ClientRepository struct {
	coll *mongo.Collection
}

func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{
		coll: db.Collection(ClientsCollection),
	}
}

func (r *ClientRepository) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	var client domain.Client
	err := r.coll.FindOne(ctx, bson.M{"client_id": clientID, "is_active": true}).Decode(&client)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, serrors.ErrUnknownClient
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve client: %w", err)
	}
	return &client, nil
}
