// ABOUTME: Static tool catalog assembled from packs with compiled input schemas
// ABOUTME: Rejects name collisions and suggests close names for unknown tools

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/ward-gateway/internal/auth"
)

// Handler executes one tool call. The caller is passed explicitly; handlers
// keep no per-caller state.
type Handler func(ctx context.Context, caller auth.Identity, args json.RawMessage) (any, error)

// Tool is a named, schema-described operation.
type Tool struct {
	Name        string
	Description string
	// InputSchema is a JSON Schema document for the arguments object.
	InputSchema string
	Handler     Handler
}

// Pack is a group of tools contributed by one feature.
type Pack struct {
	ID    string
	Tools []Tool
}

type entry struct {
	tool       Tool
	packID     string
	schema     *jsonschema.Resolved
	descriptor *mcp.Tool
}

// Catalog is an immutable set of tools. It is built once and shared by all
// dispatchers.
type Catalog struct {
	entries map[string]*entry
	names   []string
}

// NewCatalog compiles the tools of every pack. Duplicate names fail with
// ErrToolCollision and unparsable schemas with ErrInvalidSchema.
func NewCatalog(packs ...Pack) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]*entry)}

	for _, pack := range packs {
		for _, tool := range pack.Tools {
			if tool.Name == "" || tool.Handler == nil {
				return nil, fmt.Errorf("pack %s: tool %q needs a name and a handler", pack.ID, tool.Name)
			}
			if existing, ok := c.entries[tool.Name]; ok {
				return nil, fmt.Errorf("%w: tool '%s' already registered by pack '%s'",
					ErrToolCollision, tool.Name, existing.packID)
			}

			schema, resolved, err := compileSchema(tool.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("%w: tool '%s': %v", ErrInvalidSchema, tool.Name, err)
			}

			c.entries[tool.Name] = &entry{
				tool:   tool,
				packID: pack.ID,
				schema: resolved,
				descriptor: &mcp.Tool{
					Name:        tool.Name,
					Description: tool.Description,
					InputSchema: schema,
				},
			}
			c.names = append(c.names, tool.Name)
		}
	}

	sort.Strings(c.names)
	return c, nil
}

func compileSchema(doc string) (*jsonschema.Schema, *jsonschema.Resolved, error) {
	if doc == "" {
		doc = `{"type":"object"}`
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal([]byte(doc), &schema); err != nil {
		return nil, nil, err
	}
	if schema.Type != "object" {
		return nil, nil, errors.New(`input schema must have "type": "object"`)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, nil, err
	}
	return &schema, resolved, nil
}

// Names returns the sorted tool names.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Len returns the number of tools.
func (c *Catalog) Len() int {
	return len(c.names)
}

// Descriptors returns the MCP tool descriptors in name order.
func (c *Catalog) Descriptors() []*mcp.Tool {
	out := make([]*mcp.Tool, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.entries[name].descriptor)
	}
	return out
}

func (c *Catalog) lookup(name string) (*entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// suggest returns the closest tool name within a small edit distance, or "".
func (c *Catalog) suggest(name string) string {
	best, bestDist := "", -1
	limit := max(2, len(name)/3)
	for _, candidate := range c.names {
		d := levenshtein.ComputeDistance(name, candidate)
		if d > limit {
			continue
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}
