// Package metadoc reads and writes the per-entity metadata documents
// that live under the data directory of the watched root. Schema
// ownership is external; documents are validated on load so the sync
// flows never diff half-broken data.
package metadoc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentworkforce/pagemirror/internal/storage"
)

var (
	ErrNotFound = errors.New("metadata document not found")
	ErrInvalid  = errors.New("metadata document invalid")
)

const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "slug": {"type": "string", "minLength": 1},
    "title": {"type": "string"},
    "status": {"type": "string"},
    "file": {"type": "string"}
  },
  "required": ["slug"],
  "additionalProperties": true
}`

// Document mirrors one entity's metadata. File points at the primary
// content file relative to the watched root.
type Document struct {
	Slug   string `json:"slug"`
	Title  string `json:"title"`
	Status string `json:"status"`
	File   string `json:"file"`
}

type Store struct {
	ws     *storage.Workspace
	dir    string
	schema *jsonschema.Schema
}

// NewStore compiles the document schema and returns a store rooted at
// dir (relative to the workspace root).
func NewStore(ws *storage.Workspace, dir string) (*Store, error) {
	dir = strings.Trim(strings.TrimSpace(dir), "/")
	if dir == "" {
		dir = "_data"
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("metadata schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("entity-metadata.json", doc); err != nil {
		return nil, fmt.Errorf("metadata schema: %w", err)
	}
	schema, err := compiler.Compile("entity-metadata.json")
	if err != nil {
		return nil, fmt.Errorf("metadata schema: %w", err)
	}
	return &Store{ws: ws, dir: dir, schema: schema}, nil
}

// Dir returns the data directory relative to the workspace root.
func (s *Store) Dir() string {
	return s.dir
}

// DocPath returns the document path for an identifier, relative to
// the workspace root.
func (s *Store) DocPath(identifier int64) string {
	return path.Join(s.dir, strconv.FormatInt(identifier, 10)+".json")
}

// Load reads and validates the document for an identifier.
func (s *Store) Load(ctx context.Context, identifier int64) (Document, error) {
	raw, err := s.ws.ReadFile(ctx, s.DocPath(identifier))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, fmt.Errorf("document for entity %d: %w", identifier, ErrNotFound)
		}
		return Document{}, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return Document{}, fmt.Errorf("document for entity %d: %w (%v)", identifier, ErrInvalid, err)
	}
	if err := s.schema.Validate(inst); err != nil {
		return Document{}, fmt.Errorf("document for entity %d: %w (%v)", identifier, ErrInvalid, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("document for entity %d: %w (%v)", identifier, ErrInvalid, err)
	}
	return doc, nil
}

// Save writes the document for an identifier atomically.
func (s *Store) Save(ctx context.Context, identifier int64, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("document for entity %d: %w", identifier, err)
	}
	data = append(data, '\n')
	return s.ws.WriteFile(ctx, s.DocPath(identifier), data)
}
