// Package clienv builds the clients shared by the CLI commands from the
// same environment variables the functions server reads.
package clienv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/caarlos0/env/v11"

	directoryrepo "github.com/zenGate-Global/palmyra-directory/domains/directory/be/repo"
	directoryservice "github.com/zenGate-Global/palmyra-directory/domains/directory/be/service"
	notificationsprovider "github.com/zenGate-Global/palmyra-directory/domains/notifications/be/provider"
	notificationsservice "github.com/zenGate-Global/palmyra-directory/domains/notifications/be/service"
	"github.com/zenGate-Global/palmyra-directory/platform/go/gcp"
)

type config struct {
	GCP           gcp.Config
	EmailTopic    string `env:"EMAIL_TOPIC" envDefault:"emails"`
	Notifications notificationsservice.Config
}

// Options selects what a command needs.
type Options struct {
	// Publisher requests an email queue publisher.
	Publisher bool
	// DryRun prints messages to Out instead of publishing them.
	DryRun bool
	Out    io.Writer
}

// Deps are the clients handed to a command. Close releases them.
type Deps struct {
	Accounts      directoryservice.Accounts
	Tenants       notificationsservice.Tenants
	Publisher     notificationsservice.Publisher
	Notifications notificationsservice.Config

	closers []func()
}

// Close releases every client in reverse order of creation.
func (d *Deps) Close() {
	if d == nil {
		return
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// Loader builds Deps. Commands take one so tests can substitute fakes.
type Loader func(ctx context.Context, opts Options) (*Deps, error)

// Load reads the environment and connects to Firebase and, when asked, Pub/Sub.
func Load(ctx context.Context, opts Options) (*Deps, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	fb, err := gcp.InitFirebase(ctx, cfg.GCP)
	if err != nil {
		return nil, err
	}

	store := directoryrepo.NewFirestoreRepository(fb.Firestore)
	deps := &Deps{
		Accounts:      directoryrepo.NewFirebaseAccounts(fb.Auth),
		Tenants:       store,
		Notifications: cfg.Notifications,
		closers:       []func(){func() { _ = fb.Close() }},
	}

	if !opts.Publisher {
		return deps, nil
	}
	if opts.DryRun {
		deps.Publisher = PrintQueue(opts.Out)
		return deps, nil
	}

	client, err := gcp.NewPubSubClient(ctx, cfg.GCP)
	if err != nil {
		deps.Close()
		return nil, err
	}
	pub := notificationsprovider.NewPubSubPublisher(client, cfg.EmailTopic)
	deps.Publisher = pub
	deps.closers = append(deps.closers, func() { _ = client.Close() }, pub.Stop)
	return deps, nil
}

// PrintQueue is a local queue that writes each message to out as JSON.
func PrintQueue(out io.Writer) *notificationsprovider.LocalQueue {
	return notificationsprovider.NewLocalQueue(func(ctx context.Context, msg notificationsservice.Message) {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(struct {
			ID         string            `json:"id"`
			Attributes map[string]string `json:"attributes"`
			Data       string            `json:"data,omitempty"`
		}{ID: msg.ID, Attributes: msg.Attributes, Data: string(msg.Data)})
	})
}
