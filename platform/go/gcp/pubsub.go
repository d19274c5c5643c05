package gcp

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// NewPubSubClient connects to Pub/Sub for the configured project.
func NewPubSubClient(ctx context.Context, cfg Config) (*pubsub.Client, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("GCLOUD_PROJECT is required for pubsub")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, cfg.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("error initializing pubsub [%w]", err)
	}
	return client, nil
}
