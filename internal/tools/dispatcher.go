// ABOUTME: Per-session tool dispatcher bound to one caller identity
// ABOUTME: Validates arguments, runs handlers and folds every outcome into an MCP CallToolResult

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/ward-gateway/internal/auth"
	"github.com/2389/ward-gateway/internal/store"
)

// Dispatcher runs catalog tools on behalf of one owner.
type Dispatcher struct {
	catalog *Catalog
	owner   auth.Identity
	logger  *slog.Logger
	tracer  trace.Tracer
	timeout time.Duration
}

// NewDispatcher binds catalog to owner. A zero timeout leaves handler calls
// unbounded.
func NewDispatcher(catalog *Catalog, owner auth.Identity, logger *slog.Logger, timeout time.Duration) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		catalog: catalog,
		owner:   owner,
		logger:  logger.With("component", "tools", "user_id", owner.UserID),
		tracer:  otel.Tracer("github.com/2389/ward-gateway/internal/tools"),
		timeout: timeout,
	}
}

// Owner returns the identity every call runs as.
func (d *Dispatcher) Owner() auth.Identity {
	return d.owner
}

// Tools returns the descriptors for tools/list.
func (d *Dispatcher) Tools() []*mcp.Tool {
	return d.catalog.Descriptors()
}

// Invoke runs the named tool. It never returns a Go error: unknown tools,
// invalid arguments and handler failures all come back as a result with
// IsError set.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args json.RawMessage) *mcp.CallToolResult {
	ctx, span := d.tracer.Start(ctx, "tools.Invoke", trace.WithAttributes(attribute.String("tool.name", name)))
	defer span.End()

	start := time.Now()
	result, err := d.invoke(ctx, name, args)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		d.logFailure(name, err, time.Since(start))
		return errorResult(callerMessage(name, err))
	}

	d.logger.Debug("tool call", "tool", name, "duration", time.Since(start))
	res, err := successResult(result)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		d.logFailure(name, &ExecutionError{Tool: name, Err: err}, time.Since(start))
		return errorResult(fmt.Sprintf("%s failed: internal error", name))
	}
	return res
}

func (d *Dispatcher) invoke(ctx context.Context, name string, args json.RawMessage) (any, error) {
	e, ok := d.catalog.lookup(name)
	if !ok {
		if s := d.catalog.suggest(name); s != "" {
			return nil, fmt.Errorf("%w %q, did you mean %q?", ErrUnknownTool, name, s)
		}
		return nil, fmt.Errorf("%w %q", ErrUnknownTool, name)
	}

	args, err := validate(e, args)
	if err != nil {
		return nil, err
	}

	// The call outlives its connection; only the call timeout bounds it.
	callCtx := context.WithoutCancel(ctx)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, d.timeout)
		defer cancel()
	}
	return d.call(callCtx, e, args)
}

// call runs the handler, turning panics into an ExecutionError.
func (d *Dispatcher) call(ctx context.Context, e *entry, args json.RawMessage) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			result, err = nil, &ExecutionError{Tool: e.tool.Name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	return e.tool.Handler(ctx, d.owner, args)
}

// validate checks args against the tool schema and returns the normalized
// arguments ("{}" for an absent body).
func validate(e *entry, args json.RawMessage) (json.RawMessage, error) {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}

	var instance any
	if err := json.Unmarshal(args, &instance); err != nil {
		return nil, &ValidationError{Tool: e.tool.Name, Err: fmt.Errorf("arguments are not valid JSON: %w", err)}
	}
	if _, ok := instance.(map[string]any); !ok {
		return nil, &ValidationError{Tool: e.tool.Name, Err: errors.New("arguments must be a JSON object")}
	}
	if err := e.schema.Validate(instance); err != nil {
		return nil, &ValidationError{Tool: e.tool.Name, Err: err}
	}
	return args, nil
}

// callerMessage picks what the caller is allowed to see.
func callerMessage(name string, err error) string {
	switch {
	case errors.Is(err, ErrUnknownTool),
		errors.Is(err, ErrToolValidation),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrForbidden),
		errors.Is(err, store.ErrConflict):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%s timed out", name)
	default:
		return fmt.Sprintf("%s failed: internal error", name)
	}
}

func (d *Dispatcher) logFailure(name string, err error, elapsed time.Duration) {
	var exec *ExecutionError
	switch {
	case errors.As(err, &exec):
		d.logger.Error("tool execution failed", "tool", name, "error", err, "duration", elapsed)
	case errors.Is(err, ErrUnknownTool), errors.Is(err, ErrToolValidation), errors.Is(err, ErrInvalidArgument),
		errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrForbidden), errors.Is(err, store.ErrConflict):
		d.logger.Debug("tool call rejected", "tool", name, "error", err)
	default:
		d.logger.Error("tool execution failed", "tool", name, "error", err, "duration", elapsed)
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

func successResult(v any) (*mcp.CallToolResult, error) {
	var text string
	switch val := v.(type) {
	case string:
		text = val
	case json.RawMessage:
		text = string(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("encoding result: %w", err)
		}
		text = string(data)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil
}
