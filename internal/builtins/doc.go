// Package builtins provides the tool packs served by the gateway.
//
// # Tool Packs
//
// Tasks Pack (builtin:tasks):
//
//   - create_list, get_lists, get_list, update_list, delete_list
//   - clear_list_tasks
//   - create_task, get_tasks, get_task, update_task, delete_task
//   - get_task_stats
//
// Links Pack (builtin:links):
//
//   - stash_link: save a URL with fetched title, image, summary and tags
//   - get_stashed_links: list links, optionally by tag
//   - delete_link
//   - get_stash_stats
//
// # Ownership
//
// Every handler scopes store access to the calling identity's UserID.
// Records owned by someone else are reported as not found.
//
// # Inbox
//
// A task with no list is in the inbox. get_tasks with listId "inbox"
// returns exactly those tasks; create_task and update_task accept "inbox"
// as a synonym for no list.
//
// # Registration
//
//	catalog, err := builtins.NewCatalog(store, fetcher, nil, logger)
package builtins
