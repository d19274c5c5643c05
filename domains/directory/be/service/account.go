package service

import "context"

// Accounts is the identity provider contract.
type Accounts interface {
	GetUser(ctx context.Context, uid string) (Account, error)
	GetUserByEmail(ctx context.Context, email string) (Account, error)
	// DeleteUser returns ErrAccountNotFound when uid is unknown.
	DeleteUser(ctx context.Context, uid string) error
}

// FindAccount returns the account for uid, or for email when uid is empty.
// Any lookup failure, not-found included, yields nil.
func FindAccount(ctx context.Context, accounts Accounts, uid, email string) *Account {
	var (
		account Account
		err     error
	)
	switch {
	case uid != "":
		account, err = accounts.GetUser(ctx, uid)
	case email != "":
		account, err = accounts.GetUserByEmail(ctx, email)
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return &account
}
