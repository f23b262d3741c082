// ABOUTME: In-memory Store implementation for tests and throwaway gateways
// ABOUTME: Mirrors the SQLite store's ownership and cascade semantics without a database

package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	links    map[string]string // "provider:externalID" -> account ID
	lists    map[string]*List
	tasks    map[string]*Task
	stashed  map[string]*Link
	closed   bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		links:    make(map[string]string),
		lists:    make(map[string]*List),
		tasks:    make(map[string]*Task),
		stashed:  make(map[string]*Link),
	}
}

// CreateAccount stores a new account.
func (m *MemoryStore) CreateAccount(ctx context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	if _, exists := m.accounts[account.ID]; exists {
		return ErrConflict
	}
	a := *account
	m.accounts[a.ID] = &a
	return nil
}

// GetAccount retrieves an account by ID.
func (m *MemoryStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *a
	return &result, nil
}

// ListAccounts returns every account ordered by creation time.
func (m *MemoryStore) ListAccounts(ctx context.Context) ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		c := *a
		accounts = append(accounts, &c)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

// LinkProvider records that provider's externalID belongs to an account.
func (m *MemoryStore) LinkProvider(ctx context.Context, link *ProviderLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[link.AccountID]; !ok {
		return ErrNotFound
	}
	key := link.Provider + ":" + link.ExternalID
	if _, exists := m.links[key]; exists {
		return ErrConflict
	}
	m.links[key] = link.AccountID
	return nil
}

// FindByExternalID looks up the account linked to a provider subject id.
func (m *MemoryStore) FindByExternalID(ctx context.Context, provider, externalID string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.links[provider+":"+externalID]
	if !ok {
		return nil, ErrNotFound
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *a
	return &result, nil
}

// FindByEmail looks up the oldest account with a matching case-folded email.
func (m *MemoryStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := NormalizeEmail(email)
	if key == "" {
		return nil, ErrNotFound
	}
	var found *Account
	for _, a := range m.accounts {
		if NormalizeEmail(a.Email) != key {
			continue
		}
		if found == nil || a.CreatedAt.Before(found.CreatedAt) {
			found = a
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	result := *found
	return &result, nil
}

// CreateList stores a new list.
func (m *MemoryStore) CreateList(ctx context.Context, list *List) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if list.ID == "" {
		list.ID = uuid.New().String()
	}
	if list.CreatedAt.IsZero() {
		list.CreatedAt = time.Now()
	}
	list.UpdatedAt = list.CreatedAt
	l := *list
	m.lists[l.ID] = &l
	return nil
}

// GetList retrieves one of the owner's lists.
func (m *MemoryStore) GetList(ctx context.Context, ownerID, id string) (*List, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.lists[id]
	if !ok || l.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	result := *l
	return &result, nil
}

// ListLists returns the owner's lists, oldest first.
func (m *MemoryStore) ListLists(ctx context.Context, ownerID string) ([]*List, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var lists []*List
	for _, l := range m.lists {
		if l.OwnerID == ownerID {
			c := *l
			lists = append(lists, &c)
		}
	}
	sort.Slice(lists, func(i, j int) bool {
		return lists[i].CreatedAt.Before(lists[j].CreatedAt)
	})
	return lists, nil
}

// UpdateList saves title and icon of an existing list.
func (m *MemoryStore) UpdateList(ctx context.Context, list *List) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.lists[list.ID]
	if !ok || existing.OwnerID != list.OwnerID {
		return ErrNotFound
	}
	list.UpdatedAt = time.Now()
	existing.Title = list.Title
	existing.Icon = list.Icon
	existing.UpdatedAt = list.UpdatedAt
	return nil
}

// DeleteList removes a list and its tasks under one lock.
func (m *MemoryStore) DeleteList(ctx context.Context, ownerID, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lists[id]
	if !ok || l.OwnerID != ownerID {
		return 0, ErrNotFound
	}
	removed := m.deleteTasksLocked(ownerID, id)
	delete(m.lists, id)
	return removed, nil
}

// CreateTask stores a new task. Status defaults to "todo".
func (m *MemoryStore) CreateTask(ctx context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = TaskStatusTodo
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	task.UpdatedAt = task.CreatedAt
	t := *task
	m.tasks[t.ID] = &t
	return nil
}

// GetTask retrieves one of the owner's tasks.
func (m *MemoryStore) GetTask(ctx context.Context, ownerID, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	result := *t
	return &result, nil
}

// ListTasks returns the owner's tasks matching the filter, oldest first.
func (m *MemoryStore) ListTasks(ctx context.Context, ownerID string, filter TaskFilter) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tasks []*Task
	for _, t := range m.tasks {
		if t.OwnerID != ownerID {
			continue
		}
		if filter.ListID != "" && t.ListID != filter.ListID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		c := *t
		tasks = append(tasks, &c)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// UpdateTask saves every mutable field of an existing task.
func (m *MemoryStore) UpdateTask(ctx context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.tasks[task.ID]
	if !ok || existing.OwnerID != task.OwnerID {
		return ErrNotFound
	}
	task.UpdatedAt = time.Now()
	t := *task
	t.CreatedAt = existing.CreatedAt
	m.tasks[t.ID] = &t
	return nil
}

// DeleteTask removes one of the owner's tasks.
func (m *MemoryStore) DeleteTask(ctx context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

// ClearListTasks removes every task in one of the owner's lists.
func (m *MemoryStore) ClearListTasks(ctx context.Context, ownerID, listID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lists[listID]
	if !ok || l.OwnerID != ownerID {
		return 0, ErrNotFound
	}
	return m.deleteTasksLocked(ownerID, listID), nil
}

// deleteTasksLocked must be called with mu held.
func (m *MemoryStore) deleteTasksLocked(ownerID, listID string) int {
	removed := 0
	for id, t := range m.tasks {
		if t.OwnerID == ownerID && t.ListID == listID {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}

// CreateLink stores a new link.
func (m *MemoryStore) CreateLink(ctx context.Context, link *Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	if link.Tags == nil {
		link.Tags = []string{}
	}
	l := *link
	l.Tags = slices.Clone(link.Tags)
	m.stashed[l.ID] = &l
	return nil
}

// GetLink retrieves one of the owner's links.
func (m *MemoryStore) GetLink(ctx context.Context, ownerID, id string) (*Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.stashed[id]
	if !ok || l.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	result := *l
	result.Tags = slices.Clone(l.Tags)
	return &result, nil
}

// ListLinks returns the owner's links, newest first, optionally by tag.
func (m *MemoryStore) ListLinks(ctx context.Context, ownerID, tag string) ([]*Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var links []*Link
	for _, l := range m.stashed {
		if l.OwnerID != ownerID {
			continue
		}
		if tag != "" && !slices.Contains(l.Tags, tag) {
			continue
		}
		c := *l
		c.Tags = slices.Clone(l.Tags)
		links = append(links, &c)
	}
	sort.Slice(links, func(i, j int) bool {
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})
	return links, nil
}

// DeleteLink removes one of the owner's links.
func (m *MemoryStore) DeleteLink(ctx context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.stashed[id]
	if !ok || l.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(m.stashed, id)
	return nil
}

// Ping always succeeds until the store is closed.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
