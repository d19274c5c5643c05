package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Config selects the project and, for local runs, a service account file.
type Config struct {
	ProjectID       string `env:"GCLOUD_PROJECT"`
	CredentialsFile string `env:"FIREBASE_CONFIG"`
}

// ClientOptions returns the google api options shared by every GCP client.
func (c Config) ClientOptions() []option.ClientOption {
	if c.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(c.CredentialsFile)}
}

// GetApp Creates a Firebase App instance.
func GetApp(ctx context.Context, cfg Config) (*firebase.App, error) {
	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	return firebase.NewApp(ctx, fbConfig, cfg.ClientOptions()...)
}

// Firebase bundles the clients the directory handlers talk to.
type Firebase struct {
	App       *firebase.App
	Auth      *firebaseauth.Client
	Firestore *firestore.Client
}

// Close releases the Firestore connection.
func (f *Firebase) Close() error {
	if f == nil || f.Firestore == nil {
		return nil
	}
	return f.Firestore.Close()
}

// InitFirebase initializes the Firebase App and returns the Auth and Firestore clients.
func InitFirebase(ctx context.Context, cfg Config) (*Firebase, error) {
	app, err := GetApp(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app [%w]", err)
	}

	fbAuth, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase auth [%w]", err)
	}

	store, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing firestore [%w]", err)
	}

	return &Firebase{App: app, Auth: fbAuth, Firestore: store}, nil
}
