package services

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"logingate/config"
	"logingate/model"
)

// LoginRecorder stores login attempts. Recording never affects the
// response; callers only log its errors.
type LoginRecorder interface {
	Record(ctx context.Context, attempt model.LoginAttempt) error
}

type NopRecorder struct{}

func (NopRecorder) Record(context.Context, model.LoginAttempt) error { return nil }

// FirestoreRecorder writes one document per attempt.
type FirestoreRecorder struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreRecorder(client *firestore.Client, collection string) *FirestoreRecorder {
	return &FirestoreRecorder{client: client, collection: collection}
}

// FBConnection opens Firestore through the Firebase app for the audit trail.
func FBConnection(ctx context.Context, cfg config.AuditConfig) (*firestore.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing firestore client: %w", err)
	}
	return client, nil
}

func (r *FirestoreRecorder) Record(ctx context.Context, attempt model.LoginAttempt) error {
	_, err := r.client.Collection(r.collection).Doc(uuid.NewString()).Set(ctx, attempt)
	if err != nil {
		return fmt.Errorf("storing login attempt: %w", err)
	}
	return nil
}

// NewLoginRecorder returns the Firestore recorder when auditing is enabled
// and a no-op otherwise. The returned close func is never nil.
func NewLoginRecorder(ctx context.Context, cfg config.AuditConfig, logger *slog.Logger) (LoginRecorder, func() error, error) {
	if !cfg.Enabled {
		return NopRecorder{}, func() error { return nil }, nil
	}
	client, err := FBConnection(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if logger != nil {
		logger.Info("login audit enabled", "collection", cfg.Collection)
	}
	return NewFirestoreRecorder(client, cfg.Collection), client.Close, nil
}
