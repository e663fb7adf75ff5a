package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/webmaker/logind/domain"
)

// LoginTokenRepository is the MongoDB token store. Every state transition
// is a single-document update whose filter re-checks the prior state, so
// concurrent redemption attempts serialize on the document.
type LoginTokenRepository struct {
	coll *mongo.Collection
}

func NewLoginTokenRepository(ctx context.Context, db *mongo.Database) (domain.LoginTokenRepository, error) {
	coll := db.Collection(LoginTokensCollection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "code", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create login token indexes: %w", err)
	}

	return &LoginTokenRepository{coll: coll}, nil
}

func (r *LoginTokenRepository) CreateToken(ctx context.Context, token *domain.LoginToken) error {
	_, err := r.coll.InsertOne(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to store login token: %w", err)
	}
	return nil
}

func (r *LoginTokenRepository) LatestTokenForUser(ctx context.Context, userID string) (*domain.LoginToken, error) {
	var token domain.LoginToken
	err := r.coll.FindOne(ctx,
		bson.M{"user_id": userID, "invalidated": false},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&token)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("login token lookup failed: %w", err)
	}
	return &token, nil
}

func (r *LoginTokenRepository) CodeInUse(ctx context.Context, code string, since time.Time) (bool, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{
		"code":        code,
		"used":        false,
		"invalidated": false,
		"created_at":  bson.M{"$gte": since.UTC()},
	})
	if err != nil {
		return false, fmt.Errorf("code collision probe failed: %w", err)
	}
	return count > 0, nil
}

// InvalidateTokens supersedes the pair's unused tokens. The used guard in
// the filter means a token redeemed concurrently is never touched, and an
// already-used token can never be resurrected by this path.
func (r *LoginTokenRepository) InvalidateTokens(ctx context.Context, userID, audience string) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"user_id": userID, "audience": audience, "used": false, "invalidated": false},
		bson.M{"$set": bson.M{"invalidated": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate prior tokens: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *LoginTokenRepository) RecordFailedAttempt(ctx context.Context, tokenID string) (int, error) {
	var updated domain.LoginToken
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": tokenID, "used": false},
		bson.M{"$inc": bson.M{"failed_attempts": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Token was redeemed or reaped in the meantime; the counter
		// must not move on a used token.
		return 0, domain.ErrTokenNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record failed attempt: %w", err)
	}
	return updated.FailedAttempts, nil
}

// ConsumeToken is the redemption compare-and-set. The filter re-checks
// unused, non-superseded, in-window and under-limit in the same document
// update, so exactly one of N racing calls can match.
func (r *LoginTokenRepository) ConsumeToken(ctx context.Context, tokenID string, notBefore time.Time, maxAttempts int) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{
			"_id":             tokenID,
			"used":            false,
			"invalidated":     false,
			"failed_attempts": bson.M{"$lt": maxAttempts},
			"created_at":      bson.M{"$gte": notBefore.UTC()},
		},
		bson.M{"$set": bson.M{"used": true}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to consume login token: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *LoginTokenRepository) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": before.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired tokens: %w", err)
	}
	if res.DeletedCount > 0 {
		log.Debug().Int64("count", res.DeletedCount).Msg("reaped expired login tokens")
	}
	return res.DeletedCount, nil
}
