// ABOUTME: Behaviour tests shared by every Store implementation
// ABOUTME: Runs the same cases against SQLite (both drivers) and MemoryStore

package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T, driver string) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(driver, dbPath)
	if err != nil && strings.Contains(err.Error(), "CGO_ENABLED=0") {
		t.Skip("sqlite3 driver needs cgo")
	}
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("modernc", func(t *testing.T) { fn(t, setupTestStore(t, DriverModernc)) })
	t.Run("mattn", func(t *testing.T) { fn(t, setupTestStore(t, DriverCgo)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
}

func TestStore_AccountLookup(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		acct := &Account{Email: "Alice@Example.com", DisplayName: "Alice"}
		require.NoError(t, s.CreateAccount(ctx, acct))
		require.NotEmpty(t, acct.ID)

		require.NoError(t, s.LinkProvider(ctx, &ProviderLink{
			Provider:   "google.com",
			ExternalID: "sub-123",
			AccountID:  acct.ID,
		}))

		got, err := s.FindByExternalID(ctx, "google.com", "sub-123")
		require.NoError(t, err)
		assert.Equal(t, acct.ID, got.ID)
		assert.Equal(t, "Alice", got.DisplayName)

		_, err = s.FindByExternalID(ctx, "github.com", "sub-123")
		assert.ErrorIs(t, err, ErrNotFound)

		got, err = s.FindByEmail(ctx, "  alice@EXAMPLE.com ")
		require.NoError(t, err)
		assert.Equal(t, acct.ID, got.ID)

		_, err = s.FindByEmail(ctx, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_FindByEmail_OldestWins(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now().Add(-time.Hour)

		newer := &Account{Email: "bob@example.com", CreatedAt: base.Add(time.Minute)}
		older := &Account{Email: "BOB@example.com", CreatedAt: base}
		require.NoError(t, s.CreateAccount(ctx, newer))
		require.NoError(t, s.CreateAccount(ctx, older))

		got, err := s.FindByEmail(ctx, "bob@example.com")
		require.NoError(t, err)
		assert.Equal(t, older.ID, got.ID)
	})
}

func TestStore_LinkProvider_Errors(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		err := s.LinkProvider(ctx, &ProviderLink{Provider: "google.com", ExternalID: "x", AccountID: "missing"})
		assert.ErrorIs(t, err, ErrNotFound)

		acct := &Account{Email: "c@example.com"}
		require.NoError(t, s.CreateAccount(ctx, acct))
		link := &ProviderLink{Provider: "google.com", ExternalID: "x", AccountID: acct.ID}
		require.NoError(t, s.LinkProvider(ctx, link))
		assert.ErrorIs(t, s.LinkProvider(ctx, link), ErrConflict)

		dup := &Account{ID: acct.ID, Email: "d@example.com"}
		assert.ErrorIs(t, s.CreateAccount(ctx, dup), ErrConflict)
	})
}

func TestStore_ListsAreOwnerScoped(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		list := &List{OwnerID: "alice", Title: "Groceries", Icon: "cart"}
		require.NoError(t, s.CreateList(ctx, list))

		got, err := s.GetList(ctx, "alice", list.ID)
		require.NoError(t, err)
		assert.Equal(t, "Groceries", got.Title)
		assert.Equal(t, "cart", got.Icon)

		_, err = s.GetList(ctx, "bob", list.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		lists, err := s.ListLists(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, lists)

		err = s.UpdateList(ctx, &List{ID: list.ID, OwnerID: "bob", Title: "Hijacked"})
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.DeleteList(ctx, "bob", list.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.UpdateList(ctx, &List{ID: list.ID, OwnerID: "alice", Title: "Food"}))
		got, err = s.GetList(ctx, "alice", list.ID)
		require.NoError(t, err)
		assert.Equal(t, "Food", got.Title)
	})
}

func TestStore_DeleteListCascades(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		list := &List{OwnerID: "alice", Title: "Work"}
		require.NoError(t, s.CreateList(ctx, list))
		for _, title := range []string{"one", "two", "three"} {
			require.NoError(t, s.CreateTask(ctx, &Task{OwnerID: "alice", ListID: list.ID, Title: title}))
		}
		inbox := &Task{OwnerID: "alice", Title: "loose"}
		require.NoError(t, s.CreateTask(ctx, inbox))

		removed, err := s.DeleteList(ctx, "alice", list.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, removed)

		_, err = s.GetList(ctx, "alice", list.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		tasks, err := s.ListTasks(ctx, "alice", TaskFilter{ListID: list.ID})
		require.NoError(t, err)
		assert.Empty(t, tasks)

		tasks, err = s.ListTasks(ctx, "alice", TaskFilter{})
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, inbox.ID, tasks[0].ID)
	})
}

func TestStore_TaskLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		due := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

		task := &Task{
			OwnerID:     "alice",
			Title:       "Write report",
			Description: "quarterly",
			Priority:    PriorityHigh,
			DueDate:     &due,
		}
		require.NoError(t, s.CreateTask(ctx, task))
		assert.Equal(t, TaskStatusTodo, task.Status)

		got, err := s.GetTask(ctx, "alice", task.ID)
		require.NoError(t, err)
		assert.Equal(t, "quarterly", got.Description)
		assert.Equal(t, PriorityHigh, got.Priority)
		require.NotNil(t, got.DueDate)
		assert.True(t, due.Equal(*got.DueDate))
		assert.Empty(t, got.ListID)

		_, err = s.GetTask(ctx, "bob", task.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		got.Status = TaskStatusDone
		got.DueDate = nil
		require.NoError(t, s.UpdateTask(ctx, got))

		done, err := s.ListTasks(ctx, "alice", TaskFilter{Status: TaskStatusDone})
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Nil(t, done[0].DueDate)

		got.OwnerID = "bob"
		assert.ErrorIs(t, s.UpdateTask(ctx, got), ErrNotFound)

		assert.ErrorIs(t, s.DeleteTask(ctx, "bob", task.ID), ErrNotFound)
		require.NoError(t, s.DeleteTask(ctx, "alice", task.ID))
		assert.ErrorIs(t, s.DeleteTask(ctx, "alice", task.ID), ErrNotFound)
	})
}

func TestStore_ListTasksOrderAndFilter(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now().Add(-time.Hour)

		list := &List{OwnerID: "alice", Title: "Home"}
		require.NoError(t, s.CreateList(ctx, list))

		second := &Task{OwnerID: "alice", ListID: list.ID, Title: "second", CreatedAt: base.Add(time.Second)}
		first := &Task{OwnerID: "alice", ListID: list.ID, Title: "first", CreatedAt: base}
		other := &Task{OwnerID: "bob", ListID: list.ID, Title: "not mine", CreatedAt: base}
		require.NoError(t, s.CreateTask(ctx, second))
		require.NoError(t, s.CreateTask(ctx, first))
		require.NoError(t, s.CreateTask(ctx, other))

		tasks, err := s.ListTasks(ctx, "alice", TaskFilter{ListID: list.ID})
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, "first", tasks[0].Title)
		assert.Equal(t, "second", tasks[1].Title)
	})
}

func TestStore_ClearListTasks(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		list := &List{OwnerID: "alice", Title: "Errands"}
		require.NoError(t, s.CreateList(ctx, list))
		require.NoError(t, s.CreateTask(ctx, &Task{OwnerID: "alice", ListID: list.ID, Title: "a"}))
		require.NoError(t, s.CreateTask(ctx, &Task{OwnerID: "alice", ListID: list.ID, Title: "b"}))

		_, err := s.ClearListTasks(ctx, "bob", list.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		n, err := s.ClearListTasks(ctx, "alice", list.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = s.GetList(ctx, "alice", list.ID)
		assert.NoError(t, err, "list survives clearing")
	})
}

func TestStore_Links(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now().Add(-time.Hour)

		old := &Link{OwnerID: "alice", URL: "https://a.example", Title: "A", Tags: []string{"go", "news"}, CreatedAt: base}
		recent := &Link{OwnerID: "alice", URL: "https://b.example", Title: "B", Summary: "short", CreatedAt: base.Add(time.Minute)}
		require.NoError(t, s.CreateLink(ctx, old))
		require.NoError(t, s.CreateLink(ctx, recent))

		links, err := s.ListLinks(ctx, "alice", "")
		require.NoError(t, err)
		require.Len(t, links, 2)
		assert.Equal(t, recent.ID, links[0].ID)
		assert.Equal(t, []string{}, links[0].Tags)
		assert.Equal(t, "short", links[0].Summary)

		tagged, err := s.ListLinks(ctx, "alice", "go")
		require.NoError(t, err)
		require.Len(t, tagged, 1)
		assert.Equal(t, old.ID, tagged[0].ID)
		assert.Equal(t, []string{"go", "news"}, tagged[0].Tags)

		_, err = s.GetLink(ctx, "bob", old.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteLink(ctx, "bob", old.ID), ErrNotFound)

		require.NoError(t, s.DeleteLink(ctx, "alice", old.ID))
		links, err = s.ListLinks(ctx, "alice", "")
		require.NoError(t, err)
		assert.Len(t, links, 1)
	})
}

func TestStore_Ping(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		assert.NoError(t, s.Ping(context.Background()))
	})
}
