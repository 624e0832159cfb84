package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memRecord struct {
	seq  int64
	data []byte
}

// MemoryStore keeps documents in process. Bodies are stored as JSON so reads
// see the same value types the postgres backend returns.
type MemoryStore struct {
	mu    sync.RWMutex
	seq   int64
	paths map[string]map[string]*memRecord
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{paths: make(map[string]map[string]*memRecord)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(ctx context.Context, path, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.paths[path][id]
	if !ok {
		return nil, notFound(path, id)
	}
	return rec.document(id)
}

func (s *MemoryStore) Put(ctx context.Context, path, id string, data map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	docs, ok := s.paths[path]
	if !ok {
		docs = make(map[string]*memRecord)
		s.paths[path] = docs
	}
	if rec, exists := docs[id]; exists {
		rec.data = raw
		return id, nil
	}
	s.seq++
	docs[id] = &memRecord{seq: s.seq, data: raw}
	return id, nil
}

func (s *MemoryStore) Update(ctx context.Context, path, id string, ops ...Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.paths[path][id]
	if !ok {
		return notFound(path, id)
	}
	var data map[string]any
	if err := json.Unmarshal(rec.data, &data); err != nil {
		return fmt.Errorf("decode document %s: %w", id, err)
	}

	for _, op := range ops {
		keys := splitField(op.Field)
		switch op.Kind {
		case OpSet:
			v, err := normalize(op.Value)
			if err != nil {
				return err
			}
			setPath(data, keys, v)
		case OpIncrement:
			setPath(data, keys, numberAt(data, keys)+op.Delta)
		case OpIncrementFloor:
			setPath(data, keys, math.Max(numberAt(data, keys)+op.Delta, op.Bound))
		case OpIncrementBelow:
			cur := numberAt(data, keys)
			if cur >= op.Bound {
				return fmt.Errorf("%s on %s/%s: %w", op.Field, path, id, ErrConditionFailed)
			}
			setPath(data, keys, cur+op.Delta)
		case OpAppend:
			v, err := normalize(op.Value)
			if err != nil {
				return err
			}
			cur, _ := lookup(data, keys)
			list, _ := cur.([]any)
			setPath(data, keys, append(list, v))
		}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	rec.data = raw
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, path string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filters := make([]Filter, 0, len(q.Filters))
	for _, f := range q.Filters {
		v, err := normalize(f.Value)
		if err != nil {
			return nil, err
		}
		filters = append(filters, Filter{Field: f.Field, Value: v})
	}

	s.mu.RLock()
	var out []Document
	for id, rec := range s.paths[path] {
		doc, err := rec.document(id)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		if matches(doc.Data, filters) {
			out = append(out, *doc)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.OrderBy {
			c := compareAt(out[i].Data, out[j].Data, splitField(o.Field), o.Desc)
			if c != 0 {
				return c < 0
			}
		}
		return out[i].Seq < out[j].Seq
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) BatchDelete(ctx context.Context, path string, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.paths[path], id)
	}
	return nil
}

func (r *memRecord) document(id string) (*Document, error) {
	var data map[string]any
	if err := json.Unmarshal(r.data, &data); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &Document{ID: id, Seq: r.seq, Data: data}, nil
}

// normalize gives v the shape it has after a JSON round trip.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return out, nil
}

func lookup(data map[string]any, keys []string) (any, bool) {
	var cur any = data
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[k]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(data map[string]any, keys []string, v any) {
	m := data
	for _, k := range keys[:len(keys)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[k] = next
		}
		m = next
	}
	m[keys[len(keys)-1]] = v
}

func numberAt(data map[string]any, keys []string) float64 {
	v, _ := lookup(data, keys)
	n, _ := v.(float64)
	return n
}

func matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := lookup(data, splitField(f.Field))
		if !ok {
			return false
		}
		a, _ := json.Marshal(v)
		b, _ := json.Marshal(f.Value)
		if string(a) != string(b) {
			return false
		}
	}
	return true
}

// compareAt orders missing values last regardless of direction.
func compareAt(a, b map[string]any, keys []string, desc bool) int {
	va, okA := lookup(a, keys)
	vb, okB := lookup(b, keys)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	}
	c := compareValues(va, vb)
	if desc {
		return -c
	}
	return c
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case string:
		if y, ok := b.(string); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	}
	return 0
}
