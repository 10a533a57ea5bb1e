package directory

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-memory Directory for tests and local development.
type MemoryDirectory struct {
	mu     sync.RWMutex
	users  map[string]uuid.UUID // payer ref -> user ID
	roles  map[uuid.UUID]Role
	failed error // when set, all calls fail with it
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users: make(map[string]uuid.UUID),
		roles: make(map[uuid.UUID]Role),
	}
}

// AddUser registers a payer reference for a user. Test helper.
func (d *MemoryDirectory) AddUser(payerRef string, userID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[payerRef] = userID
	if _, ok := d.roles[userID]; !ok {
		d.roles[userID] = RoleFree
	}
}

// Fail makes every subsequent call return err; Fail(nil) restores normal
// operation. Test helper for partial-failure scenarios.
func (d *MemoryDirectory) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed = err
}

func (d *MemoryDirectory) ResolveUser(ctx context.Context, payerRef string) (uuid.UUID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.failed != nil {
		return uuid.Nil, d.failed
	}
	userID, ok := d.users[payerRef]
	if !ok {
		return uuid.Nil, ErrUserNotFound
	}
	return userID, nil
}

func (d *MemoryDirectory) GetEntitlementRole(ctx context.Context, userID uuid.UUID) (Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.failed != nil {
		return "", d.failed
	}
	role, ok := d.roles[userID]
	if !ok {
		return RoleFree, nil
	}
	return role, nil
}

func (d *MemoryDirectory) SetEntitlementRole(ctx context.Context, userID uuid.UUID, role Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failed != nil {
		return d.failed
	}
	if d.roles[userID] == RoleAdmin {
		return nil
	}
	d.roles[userID] = role
	return nil
}
