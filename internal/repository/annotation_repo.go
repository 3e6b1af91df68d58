package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"scenesync/internal/model"
)

// AnnotationRepository persists annotations so a session can be resumed
// after a restart. Like the session repository, it is best effort only.
type AnnotationRepository interface {
	PersistAll(ctx context.Context, sessionID string, annotations []model.Annotation) error
	LoadBySession(ctx context.Context, sessionID string) ([]model.Annotation, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}

type annotationRepo struct {
	collection *mongo.Collection
}

// NewAnnotationRepo creates a Mongo-backed annotation repository
func NewAnnotationRepo(db *mongo.Database) AnnotationRepository {
	return &annotationRepo{
		collection: db.Collection("annotations"),
	}
}

// PersistAll replaces the stored set for a session with the given one.
// Whole-set replacement keeps the store write idempotent, which matters
// because the persistence sweeper may run against the same snapshot twice.
func (r *annotationRepo) PersistAll(ctx context.Context, sessionID string, annotations []model.Annotation) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"sessionId": sessionID}); err != nil {
		return fmt.Errorf("clear annotations for %s: %w", sessionID, err)
	}
	if len(annotations) == 0 {
		return nil
	}
	docs := make([]interface{}, len(annotations))
	for i, a := range annotations {
		docs[i] = a
	}
	opts := options.InsertMany().SetOrdered(false)
	if _, err := r.collection.InsertMany(ctx, docs, opts); err != nil {
		return fmt.Errorf("persist annotations for %s: %w", sessionID, err)
	}
	return nil
}

func (r *annotationRepo) LoadBySession(ctx context.Context, sessionID string) ([]model.Annotation, error) {
	cur, err := r.collection.Find(ctx, bson.M{"sessionId": sessionID})
	if err != nil {
		return nil, fmt.Errorf("load annotations for %s: %w", sessionID, err)
	}
	defer cur.Close(ctx)

	var out []model.Annotation
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode annotations for %s: %w", sessionID, err)
	}
	return out, nil
}

func (r *annotationRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"sessionId": sessionID})
	return err
}
