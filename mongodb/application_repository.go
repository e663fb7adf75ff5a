package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/webmaker/logind/domain"
)

// ApplicationRepository is the MongoDB audience registry.
type ApplicationRepository struct {
	coll *mongo.Collection
}

func NewApplicationRepository(db *mongo.Database) domain.ApplicationRepository {
	return &ApplicationRepository{coll: db.Collection(ApplicationsCollection)}
}

func (r *ApplicationRepository) GetApplication(ctx context.Context, audience string) (*domain.Application, error) {
	var app domain.Application
	err := r.coll.FindOne(ctx, bson.M{"_id": audience}).Decode(&app)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrApplicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("application lookup failed: %w", err)
	}
	return &app, nil
}

func (r *ApplicationRepository) CreateApplication(ctx context.Context, app *domain.Application) error {
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, app)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("audience already registered: %w", err)
	}
	return err
}
