package repo

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/auth"

	"github.com/zenGate-Global/palmyra-directory/domains/directory/be/service"
)

// FirebaseAccounts adapts the Firebase Auth admin client.
type FirebaseAccounts struct {
	client *auth.Client
}

// NewFirebaseAccounts constructs FirebaseAccounts.
func NewFirebaseAccounts(client *auth.Client) *FirebaseAccounts {
	if client == nil {
		panic("firebase auth client is required")
	}
	return &FirebaseAccounts{client: client}
}

func (a *FirebaseAccounts) GetUser(ctx context.Context, uid string) (service.Account, error) {
	rec, err := a.client.GetUser(ctx, uid)
	if err != nil {
		return service.Account{}, mapAuthError(err)
	}
	return toAccount(rec), nil
}

func (a *FirebaseAccounts) GetUserByEmail(ctx context.Context, email string) (service.Account, error) {
	rec, err := a.client.GetUserByEmail(ctx, email)
	if err != nil {
		return service.Account{}, mapAuthError(err)
	}
	return toAccount(rec), nil
}

func (a *FirebaseAccounts) DeleteUser(ctx context.Context, uid string) error {
	return mapAuthError(a.client.DeleteUser(ctx, uid))
}

func toAccount(rec *auth.UserRecord) service.Account {
	if rec == nil || rec.UserInfo == nil {
		return service.Account{}
	}
	return service.Account{
		UID:         rec.UID,
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		ProviderID:  rec.ProviderID,
	}
}

func mapAuthError(err error) error {
	if err == nil {
		return nil
	}
	if auth.IsUserNotFound(err) {
		return fmt.Errorf("%w: %v", service.ErrAccountNotFound, err)
	}
	return err
}

var _ service.Accounts = (*FirebaseAccounts)(nil)
