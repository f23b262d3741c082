// ABOUTME: Store interfaces and data types for ward-gateway persistence
// ABOUTME: Defines accounts, provider links, lists, tasks and stashed links

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist or is not
// owned by the caller.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when a caller references a resource it does not own.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a unique key is already taken.
var ErrConflict = errors.New("already exists")

// ErrClosed is returned by Ping after Close.
var ErrClosed = errors.New("store closed")

// Task status values
const (
	TaskStatusTodo = "todo"
	TaskStatusDone = "done"
)

// Task priority values
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Account is a canonical user of the gateway.
type Account struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ProviderLink ties an identity provider's subject id to an account.
type ProviderLink struct {
	Provider   string // e.g. "google.com"
	ExternalID string // the provider's subject id
	AccountID  string
	CreatedAt  time.Time
}

// List is a named collection of tasks.
type List struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Icon      string    `json:"icon,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Task is a single to-do item. An empty ListID means the task is in the inbox.
type Task struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	ListID      string     `json:"listId,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TaskFilter narrows ListTasks. Empty fields match everything.
type TaskFilter struct {
	ListID string
	Status string
}

// Link is a stashed web page.
type Link struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AccountStore persists accounts and their provider links.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	ListAccounts(ctx context.Context) ([]*Account, error)
	LinkProvider(ctx context.Context, link *ProviderLink) error
	FindByExternalID(ctx context.Context, provider, externalID string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
}

// TaskStore persists lists and tasks. Every method is scoped to an owner;
// records of other owners behave as if they did not exist.
type TaskStore interface {
	CreateList(ctx context.Context, list *List) error
	GetList(ctx context.Context, ownerID, id string) (*List, error)
	ListLists(ctx context.Context, ownerID string) ([]*List, error)
	UpdateList(ctx context.Context, list *List) error
	// DeleteList removes the list and all of its tasks atomically and
	// returns the number of tasks removed.
	DeleteList(ctx context.Context, ownerID, id string) (int, error)

	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, ownerID, id string) (*Task, error)
	ListTasks(ctx context.Context, ownerID string, filter TaskFilter) ([]*Task, error)
	UpdateTask(ctx context.Context, task *Task) error
	DeleteTask(ctx context.Context, ownerID, id string) error
	ClearListTasks(ctx context.Context, ownerID, listID string) (int, error)
}

// LinkStore persists stashed links.
type LinkStore interface {
	CreateLink(ctx context.Context, link *Link) error
	GetLink(ctx context.Context, ownerID, id string) (*Link, error)
	ListLinks(ctx context.Context, ownerID, tag string) ([]*Link, error)
	DeleteLink(ctx context.Context, ownerID, id string) error
}

// Store is the full persistence surface used by the gateway.
type Store interface {
	AccountStore
	TaskStore
	LinkStore

	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error
	// Close releases any resources held by the store
	Close() error
}
