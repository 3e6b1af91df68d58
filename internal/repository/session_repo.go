package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"scenesync/internal/model"
)

// SessionRepository is the durable-store collaborator for sessions and
// their participant rosters. Persistence is opportunistic: the live
// session never depends on it.
type SessionRepository interface {
	Persist(ctx context.Context, session model.Session, participants []model.Participant) error
	Load(ctx context.Context, sessionID string) (*model.Session, []model.Participant, error)
	FindByInviteCode(ctx context.Context, code string) (*model.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

type sessionDoc struct {
	Session      model.Session       `bson:"session"`
	Participants []model.Participant `bson:"participants"`
}

type sessionRepo struct {
	collection *mongo.Collection
}

// NewSessionRepo creates a Mongo-backed session repository
func NewSessionRepo(db *mongo.Database) SessionRepository {
	return &sessionRepo{
		collection: db.Collection("sessions"),
	}
}

func (r *sessionRepo) Persist(ctx context.Context, session model.Session, participants []model.Participant) error {
	doc := sessionDoc{Session: session, Participants: participants}
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"session._id": session.ID}, doc, opts)
	if err != nil {
		return fmt.Errorf("persist session %s: %w", session.ID, err)
	}
	return nil
}

func (r *sessionRepo) Load(ctx context.Context, sessionID string) (*model.Session, []model.Participant, error) {
	var doc sessionDoc
	err := r.collection.FindOne(ctx, bson.M{"session._id": sessionID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return &doc.Session, doc.Participants, nil
}

func (r *sessionRepo) FindByInviteCode(ctx context.Context, code string) (*model.Session, error) {
	var doc sessionDoc
	err := r.collection.FindOne(ctx, bson.M{"session.inviteCode": code}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("find session by code: %w", err)
	}
	return &doc.Session, nil
}

func (r *sessionRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"session._id": sessionID})
	return err
}
