package repo

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zenGate-Global/palmyra-directory/domains/directory/be/service"
	"github.com/zenGate-Global/palmyra-directory/platform/go/firestoreevent"
)

// FirestoreRepository implements the directory repository on Cloud Firestore.
type FirestoreRepository struct {
	client *firestore.Client
}

// NewFirestoreRepository constructs a repository backed by client.
func NewFirestoreRepository(client *firestore.Client) *FirestoreRepository {
	if client == nil {
		panic("firestore client is required")
	}
	return &FirestoreRepository{client: client}
}

func (r *FirestoreRepository) GetUser(ctx context.Context, email string) (service.User, error) {
	ref, err := r.doc(service.UserPath(email))
	if err != nil {
		return service.User{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return service.User{}, mapStatus(err)
	}
	return service.UserFromFields(snap.Data()), nil
}

func (r *FirestoreRepository) CreateUser(ctx context.Context, user service.User) error {
	ref, err := r.doc(service.UserPath(user.Email))
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, user.Fields()); err != nil {
		return mapStatus(err)
	}
	return nil
}

// FindUsersByEmail runs a collection-group query over every "users"
// collection. It needs a single-field index exemption on users.email with
// collection-group scope; without it Firestore answers FailedPrecondition.
func (r *FirestoreRepository) FindUsersByEmail(ctx context.Context, email string) ([]service.DocumentMatch, error) {
	iter := r.client.CollectionGroup(service.UsersCollection).Where("email", "==", email).Documents(ctx)
	defer iter.Stop()

	var matches []service.DocumentMatch
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query users by email: %w", err)
		}
		matches = append(matches, service.DocumentMatch{
			Path: firestoreevent.RelativePath(snap.Ref.Path),
			Data: snap.Data(),
		})
	}
	return matches, nil
}

func (r *FirestoreRepository) MergeDocument(ctx context.Context, path string, fields map[string]any) error {
	ref, err := r.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, fields, firestore.MergeAll)
	return err
}

func (r *FirestoreRepository) DeleteDocument(ctx context.Context, path string) error {
	ref, err := r.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	return err
}

func (r *FirestoreRepository) TenantName(ctx context.Context, tenantID string) (string, error) {
	ref, err := r.doc(service.TenantPath(tenantID))
	if err != nil {
		return "", err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return "", mapStatus(err)
	}
	name, err := snap.DataAt("name")
	if err != nil {
		return "", fmt.Errorf("tenant %s has no name: %w", tenantID, err)
	}
	s, _ := name.(string)
	return s, nil
}

func (r *FirestoreRepository) doc(path string) (*firestore.DocumentRef, error) {
	ref := r.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("invalid document path %q", path)
	}
	return ref, nil
}

func mapStatus(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %v", service.ErrNotFound, err)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %v", service.ErrConflict, err)
	default:
		return err
	}
}

// Ensure interface compliance.
var _ service.Repository = (*FirestoreRepository)(nil)
