package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	seq        BIGSERIAL   NOT NULL,
	data       JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (path, id)
);
CREATE INDEX IF NOT EXISTS documents_data_gin ON documents USING GIN (data jsonb_path_ops);
`

// PostgresStore keeps every document path in a single JSONB table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

// Migrate creates the documents table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return unavailable("migrate documents", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, path, id string) (*Document, error) {
	const q = `SELECT seq, data FROM documents WHERE path = $1 AND id = $2`

	doc := &Document{ID: id}
	var raw []byte
	if err := s.pool.QueryRow(ctx, q, path, id).Scan(&doc.Seq, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(path, id)
		}
		return nil, unavailable("get document", err)
	}
	if err := json.Unmarshal(raw, &doc.Data); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return doc, nil
}

func (s *PostgresStore) Put(ctx context.Context, path, id string, data map[string]any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	const q = `
		INSERT INTO documents (path, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (path, id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, q, path, id, string(raw)); err != nil {
		return "", unavailable("put document", err)
	}
	return id, nil
}

// Update folds ops into one chained jsonb_set expression so they apply in a
// single statement. Guarded increments become extra WHERE predicates.
func (s *PostgresStore) Update(ctx context.Context, path, id string, ops ...Op) error {
	if len(ops) == 0 {
		return nil
	}

	args := []any{path, id}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	expr := "data"
	var guards []string
	for _, op := range ops {
		keys := arg(splitField(op.Field))
		current := fmt.Sprintf("COALESCE((data #>> %s::text[])::numeric, 0)", keys)

		var value string
		switch op.Kind {
		case OpSet:
			raw, err := json.Marshal(op.Value)
			if err != nil {
				return fmt.Errorf("marshal %s: %w", op.Field, err)
			}
			value = arg(string(raw)) + "::jsonb"
		case OpIncrement:
			value = fmt.Sprintf("to_jsonb(%s + %s::numeric)", current, arg(op.Delta))
		case OpIncrementFloor:
			value = fmt.Sprintf("to_jsonb(GREATEST(%s + %s::numeric, %s::numeric))", current, arg(op.Delta), arg(op.Bound))
		case OpIncrementBelow:
			guards = append(guards, fmt.Sprintf("%s < %s::numeric", current, arg(op.Bound)))
			value = fmt.Sprintf("to_jsonb(%s + %s::numeric)", current, arg(op.Delta))
		case OpAppend:
			raw, err := json.Marshal(op.Value)
			if err != nil {
				return fmt.Errorf("marshal %s: %w", op.Field, err)
			}
			value = fmt.Sprintf(
				"(CASE WHEN jsonb_typeof(data #> %[1]s::text[]) = 'array' THEN data #> %[1]s::text[] ELSE '[]'::jsonb END || jsonb_build_array(%[2]s::jsonb))",
				keys, arg(string(raw)))
		default:
			return fmt.Errorf("unknown op kind %d", op.Kind)
		}
		expr = fmt.Sprintf("jsonb_set(%s, %s::text[], %s, true)", expr, keys, value)
	}

	q := fmt.Sprintf(`UPDATE documents SET data = %s, updated_at = now() WHERE path = $1 AND id = $2`, expr)
	for _, g := range guards {
		q += " AND " + g
	}

	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return unavailable("update document", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if len(guards) == 0 {
		return notFound(path, id)
	}
	if _, err := s.Get(ctx, path, id); err != nil {
		return err
	}
	return fmt.Errorf("update %s/%s: %w", path, id, ErrConditionFailed)
}

func (s *PostgresStore) Query(ctx context.Context, path string, q Query) ([]Document, error) {
	args := []any{path}
	var sb strings.Builder
	sb.WriteString(`SELECT id, seq, data FROM documents WHERE path = $1`)

	if len(q.Filters) > 0 {
		containment := make(map[string]any)
		for _, f := range q.Filters {
			setPath(containment, splitField(f.Field), f.Value)
		}
		raw, err := json.Marshal(containment)
		if err != nil {
			return nil, fmt.Errorf("marshal filters: %w", err)
		}
		args = append(args, string(raw))
		fmt.Fprintf(&sb, ` AND data @> $%d::jsonb`, len(args))
	}

	sb.WriteString(` ORDER BY `)
	for _, o := range q.OrderBy {
		args = append(args, splitField(o.Field))
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, `data #> $%d::text[] %s NULLS LAST, `, len(args), dir)
	}
	sb.WriteString(`seq ASC`)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, unavailable("query documents", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var doc Document
		var raw []byte
		if err := rows.Scan(&doc.ID, &doc.Seq, &raw); err != nil {
			return nil, unavailable("scan document", err)
		}
		if err := json.Unmarshal(raw, &doc.Data); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", doc.ID, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query documents", err)
	}
	return out, nil
}

func (s *PostgresStore) BatchDelete(ctx context.Context, path string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `DELETE FROM documents WHERE path = $1 AND id = ANY($2)`
	if _, err := s.pool.Exec(ctx, q, path, ids); err != nil {
		return unavailable("batch delete documents", err)
	}
	return nil
}
