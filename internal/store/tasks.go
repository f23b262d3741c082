// ABOUTME: SQLite persistence for lists and tasks, always scoped to an owner.
// ABOUTME: Deleting a list removes its tasks in the same transaction.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateList stores a new list.
func (s *SQLiteStore) CreateList(ctx context.Context, list *List) error {
	if list.ID == "" {
		list.ID = uuid.New().String()
	}
	now := time.Now()
	if list.CreatedAt.IsZero() {
		list.CreatedAt = now
	}
	list.UpdatedAt = list.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lists (id, owner_id, title, icon, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, list.ID, list.OwnerID, list.Title, nullableString(list.Icon),
		formatTime(list.CreatedAt), formatTime(list.UpdatedAt))
	return err
}

// GetList retrieves one of the owner's lists.
func (s *SQLiteStore) GetList(ctx context.Context, ownerID, id string) (*List, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, icon, created_at, updated_at
		FROM lists WHERE id = ? AND owner_id = ?
	`, id, ownerID)
	return scanList(row)
}

// ListLists returns the owner's lists, oldest first.
func (s *SQLiteStore) ListLists(ctx context.Context, ownerID string) ([]*List, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, icon, created_at, updated_at
		FROM lists WHERE owner_id = ? ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var lists []*List
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// UpdateList saves title and icon of an existing list.
func (s *SQLiteStore) UpdateList(ctx context.Context, list *List) error {
	list.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE lists SET title = ?, icon = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, list.Title, nullableString(list.Icon), formatTime(list.UpdatedAt), list.ID, list.OwnerID)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(result)
}

// DeleteList removes a list and every task in it as one atomic batch.
func (s *SQLiteStore) DeleteList(ctx context.Context, ownerID, id string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	tasks, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE owner_id = ? AND list_id = ?`, ownerID, id)
	if err != nil {
		return 0, fmt.Errorf("deleting list tasks: %w", err)
	}
	removed, err := tasks.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM lists WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return 0, fmt.Errorf("deleting list: %w", err)
	}
	if err := rowsAffectedOrNotFound(result); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing list delete: %w", err)
	}
	return int(removed), nil
}

// CreateTask stores a new task. Status defaults to "todo".
func (s *SQLiteStore) CreateTask(ctx context.Context, task *Task) error {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, owner_id, list_id, title, description, status, priority, due_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.OwnerID, nullableString(task.ListID), task.Title, nullableString(task.Description),
		task.Status, nullableString(task.Priority), nullableTime(task.DueDate),
		formatTime(task.CreatedAt), formatTime(task.UpdatedAt))
	return err
}

// GetTask retrieves one of the owner's tasks.
func (s *SQLiteStore) GetTask(ctx context.Context, ownerID, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, list_id, title, description, status, priority, due_date, created_at, updated_at
		FROM tasks WHERE id = ? AND owner_id = ?
	`, id, ownerID)
	return scanTask(row)
}

// ListTasks returns the owner's tasks matching the filter, oldest first.
func (s *SQLiteStore) ListTasks(ctx context.Context, ownerID string, filter TaskFilter) ([]*Task, error) {
	query := `SELECT id, owner_id, list_id, title, description, status, priority, due_date, created_at, updated_at
		FROM tasks WHERE owner_id = ?`
	args := []any{ownerID}

	if filter.ListID != "" {
		query += ` AND list_id = ?`
		args = append(args, filter.ListID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask saves every mutable field of an existing task.
func (s *SQLiteStore) UpdateTask(ctx context.Context, task *Task) error {
	task.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET list_id = ?, title = ?, description = ?, status = ?, priority = ?, due_date = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, nullableString(task.ListID), task.Title, nullableString(task.Description), task.Status,
		nullableString(task.Priority), nullableTime(task.DueDate), formatTime(task.UpdatedAt),
		task.ID, task.OwnerID)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(result)
}

// DeleteTask removes one of the owner's tasks.
func (s *SQLiteStore) DeleteTask(ctx context.Context, ownerID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(result)
}

// ClearListTasks removes every task in one of the owner's lists, keeping the
// list itself.
func (s *SQLiteStore) ClearListTasks(ctx context.Context, ownerID, listID string) (int, error) {
	if _, err := s.GetList(ctx, ownerID, listID); err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE owner_id = ? AND list_id = ?`, ownerID, listID)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}

func scanList(row scanner) (*List, error) {
	var l List
	var icon sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&l.ID, &l.OwnerID, &l.Title, &icon, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning list: %w", err)
	}
	l.Icon = icon.String

	var err error
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if l.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &l, nil
}

func scanTask(row scanner) (*Task, error) {
	var t Task
	var listID, description, priority, dueDate sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.OwnerID, &listID, &t.Title, &description, &t.Status,
		&priority, &dueDate, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning task: %w", err)
	}
	t.ListID = listID.String
	t.Description = description.String
	t.Priority = priority.String

	if dueDate.Valid {
		due, err := parseTime(dueDate.String)
		if err != nil {
			return nil, fmt.Errorf("parsing due_date: %w", err)
		}
		t.DueDate = &due
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &t, nil
}
