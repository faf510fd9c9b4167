package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresBackend keeps every collection in the documents table (see
// internal/platform/db/migrations) as JSONB. Selectors become @>
// containment predicates.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

func (b *PostgresBackend) Collection(name string) Store {
	return &PostgresStore{pool: b.pool, collection: name}
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

// Pool exposes the underlying pool for health reporting.
func (b *PostgresBackend) Pool() *pgxpool.Pool { return b.pool }

func (b *PostgresBackend) Close(context.Context) error {
	b.pool.Close()
	return nil
}

type PostgresStore struct {
	pool       *pgxpool.Pool
	collection string
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Document, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND id = $2`,
		s.collection, id,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(ReasonMissing)
	}
	if err != nil {
		return nil, upstream("get document", err)
	}
	return decodeBody(body)
}

func (s *PostgresStore) Insert(ctx context.Context, doc Document) (*WriteResult, error) {
	stored := prepareInsert(doc)
	body, err := json.Marshal(stored)
	if err != nil {
		return nil, badRequest(fmt.Sprintf("encode document: %v", err))
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, rev, body) VALUES ($1, $2, $3, $4::jsonb)`,
		s.collection, stored.ID(), stored.Rev(), string(body),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, conflict()
		}
		return nil, upstream("insert document", err)
	}
	return &WriteResult{Status: http.StatusCreated, OK: true, ID: stored.ID(), Rev: stored.Rev()}, nil
}

func (s *PostgresStore) Query(ctx context.Context, selector Selector, fields []string, limit int) (*QueryResult, error) {
	containment, err := json.Marshal(Expand(Flatten(selector)))
	if err != nil {
		return nil, badRequest(fmt.Sprintf("encode selector: %v", err))
	}

	rows, err := s.pool.Query(ctx,
		`SELECT body FROM documents
		 WHERE collection = $1 AND body @> $2::jsonb
		 ORDER BY created_at
		 LIMIT $3`,
		s.collection, string(containment), normalizeLimit(limit),
	)
	if err != nil {
		return nil, upstream("query documents", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, upstream("scan document", err)
		}
		doc, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Project(doc, fields))
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("iterate documents", err)
	}
	return &QueryResult{Docs: docs}, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, doc Document) (*WriteResult, error) {
	stored := doc.Clone()
	stored[IDField] = id
	stored[RevField] = NextRev(doc.Rev())
	body, err := json.Marshal(stored)
	if err != nil {
		return nil, badRequest(fmt.Sprintf("encode document: %v", err))
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET rev = $4, body = $5::jsonb, updated_at = NOW()
		 WHERE collection = $1 AND id = $2 AND rev = $3`,
		s.collection, id, doc.Rev(), stored.Rev(), string(body),
	)
	if err != nil {
		return nil, upstream("update document", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, s.missingOrConflict(ctx, id)
	}
	return &WriteResult{Status: http.StatusCreated, OK: true, ID: id, Rev: stored.Rev()}, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id, rev string) (*WriteResult, error) {
	if rev == "" {
		return nil, badRequest(ReasonBadRev)
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2 AND rev = $3`,
		s.collection, id, rev,
	)
	if err != nil {
		return nil, upstream("delete document", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, s.missingOrConflict(ctx, id)
	}
	return &WriteResult{Status: http.StatusOK, OK: true, ID: id, Rev: NextRev(rev)}, nil
}

func (s *PostgresStore) Info(ctx context.Context) (*Info, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = $1`, s.collection,
	).Scan(&count)
	if err != nil {
		return nil, upstream("collection info", err)
	}
	return &Info{DBName: s.collection, DocCount: count, Backend: "postgres"}, nil
}

// missingOrConflict explains why a revision-guarded write touched no rows.
func (s *PostgresStore) missingOrConflict(ctx context.Context, id string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)`,
		s.collection, id,
	).Scan(&exists)
	if err != nil {
		return upstream("check document", err)
	}
	if !exists {
		return notFound(ReasonMissing)
	}
	return conflict()
}

func decodeBody(body []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, upstream("decode document", err)
	}
	return doc, nil
}
