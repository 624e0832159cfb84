// Package docstore is the document-store contract the catalog services persist
// through. Documents are JSON objects addressed by a slash-separated
// collection path and an id.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"trove/internal/apperror"
)

// ErrConditionFailed is returned by Update when a guarded increment would
// cross its bound. Nothing is written.
var ErrConditionFailed = errors.New("condition failed")

// Document is a stored JSON object. Seq is the insertion order within its
// path and is the final tiebreaker of every query.
type Document struct {
	ID   string
	Seq  int64
	Data map[string]any
}

// Decode unmarshals the document body into v.
func (d *Document) Decode(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Encode converts v into a document body using its JSON form.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return m, nil
}

// Filter is an equality predicate on a dotted field path.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Order sorts by a dotted field path. Documents missing the field sort last.
type Order struct {
	Field string
	Desc  bool
}

// Query selects documents under one path. Limit <= 0 means no limit.
type Query struct {
	Filters []Filter
	OrderBy []Order
	Limit   int
}

type OpKind int

const (
	OpSet OpKind = iota
	OpIncrement
	OpIncrementFloor
	OpIncrementBelow
	OpAppend
)

// Op is one field mutation. All ops passed to a single Update apply
// atomically.
type Op struct {
	Kind  OpKind
	Field string
	Value any
	Delta float64
	// Bound is the floor for OpIncrementFloor and the exclusive upper bound
	// of the pre-increment value for OpIncrementBelow.
	Bound float64
}

// Set replaces the value at field.
func Set(field string, value any) Op {
	return Op{Kind: OpSet, Field: field, Value: value}
}

// Increment adds delta to a numeric field. A missing field counts as zero.
func Increment(field string, delta float64) Op {
	return Op{Kind: OpIncrement, Field: field, Delta: delta}
}

// IncrementFloor adds delta and clamps the result at floor.
func IncrementFloor(field string, delta, floor float64) Op {
	return Op{Kind: OpIncrementFloor, Field: field, Delta: delta, Bound: floor}
}

// IncrementBelow adds delta only if the current value is below limit;
// otherwise Update fails with ErrConditionFailed.
func IncrementBelow(field string, delta, limit float64) Op {
	return Op{Kind: OpIncrementBelow, Field: field, Delta: delta, Bound: limit}
}

// Append adds value to the end of the array at field. A missing or
// non-array field starts a new array.
func Append(field string, value any) Op {
	return Op{Kind: OpAppend, Field: field, Value: value}
}

// Store is implemented by the memory and postgres backends.
type Store interface {
	// Get fails with apperror.ErrNotFound when the document does not exist.
	Get(ctx context.Context, path, id string) (*Document, error)
	// Put writes data under id, generating an id when empty, and returns it.
	Put(ctx context.Context, path, id string, data map[string]any) (string, error)
	// Update applies ops atomically. Fails with apperror.ErrNotFound when the
	// document does not exist.
	Update(ctx context.Context, path, id string, ops ...Op) error
	Query(ctx context.Context, path string, q Query) ([]Document, error)
	BatchDelete(ctx context.Context, path string, ids []string) error
}

// Join builds a collection path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

func splitField(field string) []string {
	return strings.Split(field, ".")
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, apperror.ErrStoreUnavailable, err)
}

func notFound(path, id string) error {
	return fmt.Errorf("document %s/%s: %w", path, id, apperror.ErrNotFound)
}
