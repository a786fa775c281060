package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pulseplan.io/auth/domain"
)

type TokenRepository struct {
	coll *mongo.Collection
}

func NewTokenRepository(ctx context.Context, db *mongo.Database) (*TokenRepository, error) {
	repo := &TokenRepository{
		coll: db.Collection(TokensCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create token indexes (may already exist)")
	}
	return repo, nil
}

func (r *TokenRepository) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_value", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
		},
	}
	_, err := r.coll.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create indexes for tokens collection: %w", err)
	}
	return nil
}

func (r *TokenRepository) StoreToken(ctx context.Context, token *domain.Token) error {
	_, err := r.coll.InsertOne(ctx, token)
	return err
}

func (r *TokenRepository) GetAccessToken(ctx context.Context, tokenValue string) (*domain.Token, error) {
	return r.getByType(ctx, tokenValue, domain.TokenTypeAccess)
}

func (r *TokenRepository) GetRefreshToken(ctx context.Context, tokenValue string) (*domain.Token, error) {
	return r.getByType(ctx, tokenValue, domain.TokenTypeRefresh)
}

func (r *TokenRepository) getByType(ctx context.Context, tokenValue, tokenType string) (*domain.Token, error) {
	var token domain.Token
	err := r.coll.FindOne(ctx, bson.M{
		"token_value": tokenValue, "token_type": tokenType,
		"is_revoked": bson.M{"$ne": true}, "expires_at": bson.M{"$gt": time.Now().UTC()},
	}).Decode(&token)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.New("token not found or invalid")
	}
	return &token, err
}

// RevokeToken marks the token revoked regardless of type. Revoking an
// already revoked token matches zero documents and still returns nil.
func (r *TokenRepository) RevokeToken(ctx context.Context, tokenValue string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"token_value": tokenValue},
		bson.M{"$set": bson.M{"is_revoked": true}})
	return err
}

func (r *TokenRepository) RevokeTokensByUser(ctx context.Context, userID string) error {
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"is_revoked": true}})
	return err
}

func (r *TokenRepository) GetTokenInfo(ctx context.Context, tokenValue string) (*domain.TokenInfo, error) {
	var token domain.Token
	err := r.coll.FindOne(ctx, bson.M{"token_value": tokenValue}).Decode(&token)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.New("token not found")
	}
	if err != nil {
		return nil, err
	}
	return &domain.TokenInfo{
		ID:        token.ID,
		TokenType: token.TokenType,
		ClientID:  token.ClientID,
		UserID:    token.UserID,
		Scope:     token.Scope,
		IssuedAt:  token.CreatedAt,
		ExpiresAt: token.ExpiresAt,
		IsRevoked: token.IsRevoked,
	}, nil
}

func (r *TokenRepository) DeleteExpiredTokens(ctx context.Context) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": time.Now().UTC()}})
	return err
}
