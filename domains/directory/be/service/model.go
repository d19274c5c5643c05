package service

import (
	"errors"
	"strings"
)

// Collection layout.
const (
	UsersCollection   = "users"
	TenantsCollection = "tenants"

	// MembershipPathPrefix distinguishes tenant memberships from central
	// records in collection-group results.
	MembershipPathPrefix = TenantsCollection + "/"

	RoleInvited = "invited"
)

// Domain sentinel errors.
var (
	ErrNotFound        = errors.New("document not found")
	ErrConflict        = errors.New("document already exists")
	ErrAccountNotFound = errors.New("account not found")
)

// Account is the identity-provider view of a user.
type Account struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	ProviderID  string `json:"providerId,omitempty"`
}

// User is the central record stored at users/{email}.
type User struct {
	Email    string
	Name     string
	UID      *string
	Provider *string
}

// Invitation holds the optional personalized text sent with an invite.
type Invitation struct {
	Message *string
}

// Membership is the per-tenant record stored at tenants/{tenantId}/users/{email}.
type Membership struct {
	TenantID   string
	Email      string
	Name       string
	Role       string
	Provider   *string
	Invitation *Invitation
}

// DocumentMatch is one hit of a collection-group query. Path is relative to
// the database root.
type DocumentMatch struct {
	Path string
	Data map[string]any
}

// IsMembership reports whether the match lives under a tenant.
func (m DocumentMatch) IsMembership() bool {
	return IsMembershipPath(m.Path)
}

// TenantID extracts {tenantId} from tenants/{tenantId}/users/{email}.
func (m DocumentMatch) TenantID() string {
	return TenantIDFromPath(m.Path)
}

// IsMembershipPath reports whether path is under the tenants collection.
func IsMembershipPath(path string) bool {
	return strings.HasPrefix(path, MembershipPathPrefix)
}

// TenantIDFromPath returns the tenant segment of a membership path, or "".
func TenantIDFromPath(path string) string {
	if !IsMembershipPath(path) {
		return ""
	}
	rest := strings.TrimPrefix(path, MembershipPathPrefix)
	if idx := strings.Index(rest, "/"); idx >= 0 {
		return rest[:idx]
	}
	return rest
}

// UserPath is the central record path for email.
func UserPath(email string) string {
	return UsersCollection + "/" + email
}

// TenantPath is the tenant record path.
func TenantPath(tenantID string) string {
	return TenantsCollection + "/" + tenantID
}

// MembershipPath is the membership record path.
func MembershipPath(tenantID, email string) string {
	return TenantPath(tenantID) + "/" + UsersCollection + "/" + email
}

// UserFromFields maps stored fields onto a User. Missing or null optional
// fields stay nil.
func UserFromFields(fields map[string]any) User {
	return User{
		Email:    stringField(fields, "email"),
		Name:     stringField(fields, "name"),
		UID:      optionalStringField(fields, "uid"),
		Provider: optionalStringField(fields, "provider"),
	}
}

// Fields renders a User for storage. Nil optionals are written as null.
func (u User) Fields() map[string]any {
	fields := map[string]any{
		"email": u.Email,
		"name":  u.Name,
		"uid":   nil,
	}
	if u.UID != nil {
		fields["uid"] = *u.UID
	}
	if u.Provider != nil {
		fields["provider"] = *u.Provider
	}
	return fields
}

// MembershipFromFields maps stored fields onto a Membership. The invitation
// is only read for invited members.
func MembershipFromFields(tenantID, email string, fields map[string]any) Membership {
	m := Membership{
		TenantID: tenantID,
		Email:    email,
		Name:     stringField(fields, "name"),
		Role:     stringField(fields, "role"),
		Provider: optionalStringField(fields, "provider"),
	}
	if m.Role != RoleInvited {
		return m
	}
	if inv, ok := fields["invitation"].(map[string]any); ok {
		m.Invitation = &Invitation{Message: optionalStringField(inv, "message")}
	}
	return m
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func optionalStringField(fields map[string]any, key string) *string {
	s, ok := fields[key].(string)
	if !ok {
		return nil
	}
	return &s
}
