// Package docstore is the document database facade shared by the patient
// and treatment domains. A Backend hands out per-collection Stores; every
// backend speaks the same revisioned-document contract:
//
//   - documents are JSON objects keyed by "_id" and versioned by "_rev";
//   - Update and Delete must present the current "_rev" or fail with a
//     Conflict;
//   - Query takes a structural selector (exact match on leaf values) and an
//     optional projection of dotted field paths.
//
// Failures surface as *Error with a closed set of kinds so callers never
// probe driver-specific error shapes.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	IDField  = "_id"
	RevField = "_rev"

	// DefaultQueryLimit applies when Query is called with limit <= 0.
	DefaultQueryLimit = 25
)

// Document is a JSON object as stored in a collection.
type Document map[string]interface{}

func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

func (d Document) Rev() string {
	rev, _ := d[RevField].(string)
	return rev
}

// Clone returns a deep copy so callers can mutate results freely.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return cloneValue(map[string]interface{}(d)).(map[string]interface{})
}

// Encode converts a JSON-tagged value into a Document.
func Encode(v interface{}) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode fills v from doc using v's JSON tags.
func Decode(doc Document, v interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Selector is a structural match predicate. Nested objects and dotted keys
// are equivalent: {"patient": {"_id": x}} == {"patient._id": x}.
type Selector map[string]interface{}

// WriteResult mirrors the store acknowledgement for a write.
type WriteResult struct {
	Status int    `json:"-"`
	OK     bool   `json:"ok"`
	ID     string `json:"id"`
	Rev    string `json:"rev"`
}

type QueryResult struct {
	Docs []Document `json:"docs"`
}

// Info describes a collection.
type Info struct {
	DBName   string `json:"db_name"`
	DocCount int64  `json:"doc_count"`
	Backend  string `json:"backend"`
}

// Store is a single named collection.
type Store interface {
	Get(ctx context.Context, id string) (Document, error)
	Insert(ctx context.Context, doc Document) (*WriteResult, error)
	Query(ctx context.Context, selector Selector, fields []string, limit int) (*QueryResult, error)
	Update(ctx context.Context, id string, doc Document) (*WriteResult, error)
	Delete(ctx context.Context, id, rev string) (*WriteResult, error)
	Info(ctx context.Context) (*Info, error)
}

// Backend opens collections on one database connection.
type Backend interface {
	Collection(name string) Store
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// NewID returns a dash-free 32 hex character document id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NextRev returns the revision following rev ("" yields the first one).
func NextRev(rev string) string {
	n := 0
	if rev != "" {
		prefix, _, _ := strings.Cut(rev, "-")
		n, _ = strconv.Atoi(prefix)
	}
	return fmt.Sprintf("%d-%s", n+1, NewID())
}

// prepareInsert copies doc and stamps id and first revision.
func prepareInsert(doc Document) Document {
	out := doc.Clone()
	if out == nil {
		out = Document{}
	}
	if out.ID() == "" {
		out[IDField] = NewID()
	}
	out[RevField] = NextRev("")
	return out
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	return limit
}
