package repo

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/zenGate-Global/palmyra-directory/domains/directory/be/service"
)

// MemoryRepository is a path-keyed in-memory document store suitable for tests and local runs.
type MemoryRepository struct {
	mu   sync.RWMutex
	docs map[string]map[string]any
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string]map[string]any)}
}

// Put stores fields at path, replacing any existing document.
func (r *MemoryRepository) Put(path string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[path] = cloneFields(fields)
}

// Document returns a copy of the document at path.
func (r *MemoryRepository) Document(path string) (map[string]any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[path]
	if !ok {
		return nil, false
	}
	return cloneFields(doc), true
}

func (r *MemoryRepository) GetUser(ctx context.Context, email string) (service.User, error) {
	doc, ok := r.Document(service.UserPath(email))
	if !ok {
		return service.User{}, service.ErrNotFound
	}
	return service.UserFromFields(doc), nil
}

func (r *MemoryRepository) CreateUser(ctx context.Context, user service.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := service.UserPath(user.Email)
	if _, exists := r.docs[path]; exists {
		return service.ErrConflict
	}
	r.docs[path] = user.Fields()
	return nil
}

// FindUsersByEmail mirrors the collection-group query: every document whose
// parent collection is "users" and whose email field matches. Results are
// ordered by path.
func (r *MemoryRepository) FindUsersByEmail(ctx context.Context, email string) ([]service.DocumentMatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []service.DocumentMatch
	for path, doc := range r.docs {
		if parentCollection(path) != service.UsersCollection {
			continue
		}
		if v, _ := doc["email"].(string); v != email {
			continue
		}
		matches = append(matches, service.DocumentMatch{Path: path, Data: cloneFields(doc)})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Path < matches[j].Path })
	return matches, nil
}

func (r *MemoryRepository) MergeDocument(ctx context.Context, path string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[path]
	if !ok {
		doc = make(map[string]any, len(fields))
		r.docs[path] = doc
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

// DeleteDocument succeeds when nothing is stored at path.
func (r *MemoryRepository) DeleteDocument(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, path)
	return nil
}

func (r *MemoryRepository) TenantName(ctx context.Context, tenantID string) (string, error) {
	doc, ok := r.Document(service.TenantPath(tenantID))
	if !ok {
		return "", service.ErrNotFound
	}
	name, _ := doc["name"].(string)
	return name, nil
}

func parentCollection(path string) string {
	segments := strings.Split(path, "/")
	if len(segments) < 2 || len(segments)%2 != 0 {
		return ""
	}
	return segments[len(segments)-2]
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// MemoryAccounts is an in-memory identity provider keyed by uid.
type MemoryAccounts struct {
	mu    sync.RWMutex
	byUID map[string]service.Account
}

// NewMemoryAccounts constructs a MemoryAccounts seeded with accounts.
func NewMemoryAccounts(accounts ...service.Account) *MemoryAccounts {
	m := &MemoryAccounts{byUID: make(map[string]service.Account, len(accounts))}
	for _, a := range accounts {
		m.byUID[a.UID] = a
	}
	return m
}

func (m *MemoryAccounts) GetUser(ctx context.Context, uid string) (service.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byUID[uid]
	if !ok {
		return service.Account{}, service.ErrAccountNotFound
	}
	return a, nil
}

func (m *MemoryAccounts) GetUserByEmail(ctx context.Context, email string) (service.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.byUID {
		if strings.EqualFold(a.Email, email) {
			return a, nil
		}
	}
	return service.Account{}, service.ErrAccountNotFound
}

func (m *MemoryAccounts) DeleteUser(ctx context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUID[uid]; !ok {
		return service.ErrAccountNotFound
	}
	delete(m.byUID, uid)
	return nil
}

// Ensure interface compliance.
var (
	_ service.Repository = (*MemoryRepository)(nil)
	_ service.Accounts   = (*MemoryAccounts)(nil)
)
