// ABOUTME: Tasks pack provides list and task tools scoped to the calling user
// ABOUTME: Tasks without a list live in the inbox; deleting a list removes its tasks

package builtins

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/ward-gateway/internal/auth"
	"github.com/2389/ward-gateway/internal/store"
	"github.com/2389/ward-gateway/internal/tools"
)

// InboxListID selects tasks that belong to no list.
const InboxListID = "inbox"

var (
	errListNotFound = fmt.Errorf("list %w", store.ErrNotFound)
	errTaskNotFound = fmt.Errorf("task %w", store.ErrNotFound)
)

// TasksPack creates the tasks pack with list and task tools.
func TasksPack(s store.TaskStore) tools.Pack {
	h := &taskHandlers{store: s}
	return tools.Pack{
		ID: "builtin:tasks",
		Tools: []tools.Tool{
			// List tools
			{
				Name:        "create_list",
				Description: "Create a new task list for the authenticated user",
				InputSchema: `{"type":"object","properties":{"title":{"type":"string","minLength":1},"icon":{"type":"string"}},"required":["title"]}`,
				Handler:     h.CreateList,
			},
			{
				Name:        "get_lists",
				Description: "Get all task lists with their open task counts, plus the open task count of the Inbox",
				InputSchema: `{"type":"object","properties":{}}`,
				Handler:     h.GetLists,
			},
			{
				Name:        "get_list",
				Description: "Get a task list by list ID",
				InputSchema: `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`,
				Handler:     h.GetList,
			},
			{
				Name:        "update_list",
				Description: "Update the title or icon of a task list",
				InputSchema: `{"type":"object","properties":{"id":{"type":"string"},"title":{"type":"string","minLength":1},"icon":{"type":"string"}},"required":["id"]}`,
				Handler:     h.UpdateList,
			},
			{
				Name:        "delete_list",
				Description: "Delete a task list and every task in it",
				InputSchema: `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`,
				Handler:     h.DeleteList,
			},
			{
				Name:        "clear_list_tasks",
				Description: "Delete every task in a task list, keeping the list",
				InputSchema: `{"type":"object","properties":{"listId":{"type":"string"}},"required":["listId"]}`,
				Handler:     h.ClearListTasks,
			},
			// Task tools
			{
				Name:        "create_task",
				Description: "Create a new task. Without a listId the task goes to the Inbox.",
				InputSchema: `{"type":"object","properties":{"title":{"type":"string","minLength":1},"description":{"type":"string"},"listId":{"type":"string"},"priority":{"type":"string","enum":["low","medium","high"]},"dueDate":{"type":"string"}},"required":["title"]}`,
				Handler:     h.CreateTask,
			},
			{
				Name:        "get_tasks",
				Description: "Get tasks, optionally filtered by listId or status. listId \"inbox\" returns only tasks without a list.",
				InputSchema: `{"type":"object","properties":{"listId":{"type":"string"},"status":{"type":"string","enum":["todo","done"]}}}`,
				Handler:     h.GetTasks,
			},
			{
				Name:        "get_task",
				Description: "Get a task by task ID. format \"html\" also renders the markdown description.",
				InputSchema: `{"type":"object","properties":{"id":{"type":"string"},"format":{"type":"string","enum":["text","html"]}},"required":["id"]}`,
				Handler:     h.GetTask,
			},
			{
				Name:        "update_task",
				Description: "Update a task and its properties by task ID. An empty listId moves the task to the Inbox.",
				InputSchema: `{"type":"object","properties":{"id":{"type":"string"},"title":{"type":"string","minLength":1},"description":{"type":"string"},"listId":{"type":"string"},"priority":{"type":"string","enum":["low","medium","high"]},"status":{"type":"string","enum":["todo","done"]},"dueDate":{"type":"string"}},"required":["id"]}`,
				Handler:     h.UpdateTask,
			},
			{
				Name:        "delete_task",
				Description: "Delete a task by task ID",
				InputSchema: `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`,
				Handler:     h.DeleteTask,
			},
			{
				Name:        "get_task_stats",
				Description: "Get task statistics: total, completed and remaining",
				InputSchema: `{"type":"object","properties":{}}`,
				Handler:     h.GetTaskStats,
			},
		},
	}
}

type taskHandlers struct {
	store store.TaskStore
}

// ListSummary is a list with the number of its tasks still to do.
type ListSummary struct {
	*store.List
	TaskCount int `json:"taskCount"`
}

// ListsOverview is the result of get_lists.
type ListsOverview struct {
	Lists      []ListSummary `json:"lists"`
	InboxCount int           `json:"inboxCount"`
}

// TaskStats is the result of get_task_stats.
type TaskStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Remaining int `json:"remaining"`
}

type taskView struct {
	*store.Task
	DescriptionHTML string `json:"descriptionHtml,omitempty"`
}

type idInput struct {
	ID string `json:"id"`
}

type createListInput struct {
	Title string `json:"title"`
	Icon  string `json:"icon"`
}

type updateListInput struct {
	ID    string  `json:"id"`
	Title *string `json:"title"`
	Icon  *string `json:"icon"`
}

type clearListInput struct {
	ListID string `json:"listId"`
}

type createTaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ListID      string `json:"listId"`
	Priority    string `json:"priority"`
	DueDate     string `json:"dueDate"`
}

type getTasksInput struct {
	ListID string `json:"listId"`
	Status string `json:"status"`
}

type getTaskInput struct {
	ID     string `json:"id"`
	Format string `json:"format"`
}

type updateTaskInput struct {
	ID          string  `json:"id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	ListID      *string `json:"listId"`
	Priority    *string `json:"priority"`
	Status      *string `json:"status"`
	DueDate     *string `json:"dueDate"`
}

func (h *taskHandlers) CreateList(ctx context.Context, caller auth.Identity, input json.RawMessage) (any, error) {
	var in createListInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	list := &store.List{OwnerID: caller.UserID, Title: in.Title, Icon: in.Icon}
	if err := h.store.CreateList(ctx, list); err != nil {
		return nil, fmt.Errorf("create list: %w", err)
	}
	return list, nil
}

func (h *taskHandlers) GetLists(ctx context.Context, caller auth.Identity, _ json.RawMessage) (any, error) {
	return Overview(ctx, h.store, caller.UserID)
}

// Overview returns the owner's lists with open task counts and the open
// task count of the inbox.
func Overview(ctx context.Context, s store.TaskStore, ownerID string) (*ListsOverview, error) {
	lists, err := s.ListLists(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	open, err := s.ListTasks(ctx, ownerID, store.TaskFilter{Status: store.TaskStatusTodo})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	counts := make(map[string]int)
	for _, t := range open {
		counts[t.ListID]++
	}

	out := &ListsOverview{Lists: make([]ListSummary, 0, len(lists)), InboxCount: counts[""]}
	for _, l := range lists {
		out.Lists = append(out.Lists, ListSummary{List: l, TaskCount: counts[l.ID]})
	}
	return out, nil
}

func (h *taskHandlers) GetList(ctx context.Context, caller auth.Identity, input json.RawMessage) (any, error) {
	var in idInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	list, err := h.store.GetList(ctx, caller.UserID, in.ID)
	if err != nil {
		return nil, notFoundAs(err, errListNotFound)
	}
	return list, nil
}

func (h *taskHandlers) UpdateList(ctx context.Context, caller auth.Identity, input json.RawMessage) (any, error) {
	var in updateListInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	list, err := h.store.GetList(ctx, caller.UserID, in.ID)
	if err != nil {
		return nil, notFoundAs(err, errListNotFound)
	}
	if in.Title != nil {
		list.Title = *in.Title
	}
	if in.Icon != nil {
		list.Icon = *in.Icon
	}
	if err := h.store.UpdateList(ctx, list); err != nil {
		return nil, notFoundAs(err, errListNotFound)
	}
	return list, nil
}

func (h *taskHandlers) DeleteList(ctx context.Context, caller auth.Identity, input json.RawMessage) (any, error) {
	var in idInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if _, err := h.store.DeleteList(ctx, caller.UserID, in.ID); err != nil {
		return nil, notFoundAs(err, errListNotFound)
	}
	return fmt.Sprintf("List %s deleted", in.ID), nil
}

func (h *taskHandlers) ClearListTasks(ctx context.Context, caller auth.Identity, input json.RawMessage) (any, error) {
	var in clearListInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if _, err := h.store.ClearListTasks(ctx, caller.UserID, in.ListID); err != nil {
		return nil, notFoundAs(err, errListNotFound)
	}
	return fmt.Sprintf("Tasks cleared for list %s", in.ListID), nil
}

func (h *taskHandlers) CreateTask(ctx context.Context, caller auth.Identity, input json.RawMessage) (any, error) {
	var in createTaskInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.ListID == InboxListID {
		in.ListID = ""
	}
	if err := h.checkListOwned(ctx, caller.UserID, in.ListID); err != nil {
		return nil, err
	}
	due, err := parseDueDate(in.DueDate)
	if err != nil {
		return nil, err
	}

	task := &store.Task{
		OwnerID:     caller.UserID,
		ListID:      in.ListID,
		Title:       in.Title,
		Description: in.Description,
		Status:      store.TaskStatusTodo,
		Priority:    in.Priority,
		DueDate:     due,
	}
	if err := h.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

func (h *taskHandlers) GetTasks(ctx context.Context, caller auth.Identity, input json.RawMessage) (any, error) {
	var in getTasksInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	tasks, err := FindTasks(ctx, h.store, caller.UserID, in.ListID, in.Status)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// FindTasks returns the owner's tasks filtered by list and status. listID
// "inbox" selects the tasks that belong to no list.
func FindTasks(ctx context.Context, s store.TaskStore, ownerID, listID, status string) ([]*store.Task, error) {
	filter := store.TaskFilter{ListID: listID, Status: status}
	inbox := listID == InboxListID
	if inbox {
		filter.ListID = ""
	}

	tasks, err := s.ListTasks(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	out := make([]*store.Task, 0, len(tasks))
	for _, t := range tasks {
		if inbox && t.ListID != "" {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (h *taskHandlers) GetTask(ctx context.Context, caller auth.Identity, input json.RawMessage) (any, error) {
	var in getTaskInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	task, err := h.store.GetTask(ctx, caller.UserID, in.ID)
	if err != nil {
		return nil, notFoundAs(err, errTaskNotFound)
	}

	view := taskView{Task: task}
	if in.Format == "html" && task.Description != "" {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(task.Description), &buf); err != nil {
			return nil, fmt.Errorf("render description: %w", err)
		}
		view.DescriptionHTML = buf.String()
	}
	return view, nil
}

func (h *taskHandlers) UpdateTask(ctx context.Context, caller auth.Identity, input json.RawMessage) (any, error) {
	var in updateTaskInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	task, err := h.store.GetTask(ctx, caller.UserID, in.ID)
	if err != nil {
		return nil, notFoundAs(err, errTaskNotFound)
	}

	if in.Title != nil {
		task.Title = *in.Title
	}
	if in.Description != nil {
		task.Description = *in.Description
	}
	if in.ListID != nil {
		listID := *in.ListID
		if listID == InboxListID {
			listID = ""
		}
		if err := h.checkListOwned(ctx, caller.UserID, listID); err != nil {
			return nil, err
		}
		task.ListID = listID
	}
	if in.Priority != nil {
		task.Priority = *in.Priority
	}
	if in.Status != nil {
		task.Status = *in.Status
	}
	if in.DueDate != nil {
		due, err := parseDueDate(*in.DueDate)
		if err != nil {
			return nil, err
		}
		task.DueDate = due
	}

	if err := h.store.UpdateTask(ctx, task); err != nil {
		return nil, notFoundAs(err, errTaskNotFound)
	}
	return task, nil
}

func (h *taskHandlers) DeleteTask(ctx context.Context, caller auth.Identity, input json.RawMessage) (any, error) {
	var in idInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if err := h.store.DeleteTask(ctx, caller.UserID, in.ID); err != nil {
		return nil, notFoundAs(err, errTaskNotFound)
	}
	return fmt.Sprintf("Task %s deleted", in.ID), nil
}

func (h *taskHandlers) GetTaskStats(ctx context.Context, caller auth.Identity, _ json.RawMessage) (any, error) {
	return Stats(ctx, h.store, caller.UserID)
}

// Stats counts the owner's tasks.
func Stats(ctx context.Context, s store.TaskStore, ownerID string) (*TaskStats, error) {
	tasks, err := s.ListTasks(ctx, ownerID, store.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	stats := &TaskStats{Total: len(tasks)}
	for _, t := range tasks {
		if t.Status == store.TaskStatusDone {
			stats.Completed++
		}
	}
	stats.Remaining = stats.Total - stats.Completed
	return stats, nil
}

// checkListOwned rejects list ids the caller does not own. The inbox ("")
// is always allowed.
func (h *taskHandlers) checkListOwned(ctx context.Context, ownerID, listID string) error {
	if listID == "" {
		return nil
	}
	if _, err := h.store.GetList(ctx, ownerID, listID); err != nil {
		return notFoundAs(err, errListNotFound)
	}
	return nil
}

// parseDueDate accepts RFC 3339 timestamps and plain dates.
func parseDueDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, tools.InvalidArgument("dueDate %q must be a date (2006-01-02) or RFC 3339 timestamp", s)
}

// decode unmarshals already schema-validated arguments.
func decode(input json.RawMessage, v any) error {
	if len(input) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, v); err != nil {
		return tools.InvalidArgument("malformed arguments: %v", err)
	}
	return nil
}

// notFoundAs replaces store.ErrNotFound with a caller-facing error naming the
// missing entity. Other errors pass through.
func notFoundAs(err, replacement error) error {
	if errors.Is(err, store.ErrNotFound) {
		return replacement
	}
	return err
}
