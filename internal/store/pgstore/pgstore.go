// Package pgstore keeps documents as JSONB rows in Postgres. Transactions lock
// the rows they read with SELECT ... FOR UPDATE and are retried on
// serialization failures, deadlocks and racing inserts.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rewards_webapp/internal/logger"
	"rewards_webapp/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is applied by cmd/migrate_apply and by Migrate
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL DEFAULT '{}'::jsonb,
	version    BIGINT      NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents (collection);
`

type Store struct {
	db          *pgxpool.Pool
	maxAttempts int
}

func New(db *pgxpool.Pool, maxAttempts int) *Store {
	if maxAttempts < 1 {
		maxAttempts = store.DefaultMaxAttempts
	}
	return &Store{db: db, maxAttempts: maxAttempts}
}

// Migrate creates the documents table if it is missing
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate documents: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, ref store.Ref) (store.Doc, error) {
	return getDoc(ctx, s.db, ref, false)
}

func (s *Store) Set(ctx context.Context, ref store.Ref, data store.Doc, merge bool) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Set(ctx, ref, data, merge)
	})
}

func (s *Store) Update(ctx context.Context, ref store.Ref, updates store.Updates) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Update(ctx, ref, updates)
	})
}

func (s *Store) RunTransaction(ctx context.Context, fn store.TxFunc) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		logger.Debug("document transaction conflict, retrying", "attempt", attempt, "error", err)
	}
	return fmt.Errorf("%w: %v", store.ErrConflict, lastErr)
}

func (s *Store) runOnce(ctx context.Context, fn store.TxFunc) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrapErr(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapErr(err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Snapshot, error) {
	sql, args := buildQuery(q)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []store.Snapshot
	for rows.Next() {
		var (
			collection, id string
			raw            []byte
		)
		if err := rows.Scan(&collection, &id, &raw); err != nil {
			return nil, err
		}
		d, err := store.DecodeJSON(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, store.Snapshot{Ref: store.NewRef(collection, id), Data: d})
	}
	return out, rows.Err()
}

// buildQuery renders q as SQL. Field paths are passed as text[] parameters,
// never interpolated.
func buildQuery(q store.Query) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	param := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	sb.WriteString("SELECT collection, id, data FROM documents WHERE ")
	if q.Group {
		p := param(q.Collection)
		sb.WriteString("(collection = " + p + " OR collection LIKE '%/' || " + p + ")")
	} else {
		sb.WriteString("collection = " + param(q.Collection))
	}

	for _, f := range q.Where {
		sb.WriteString(" AND data #> " + param(strings.Split(f.Field, ".")) + "::text[] = " + param(filterJSON(f.Value)) + "::jsonb")
	}

	if q.OrderBy != "" {
		dir := "ASC NULLS FIRST"
		if q.Desc {
			dir = "DESC NULLS LAST"
		}
		sb.WriteString(" ORDER BY data #> " + param(strings.Split(q.OrderBy, ".")) + "::text[] " + dir + ", id")
	} else {
		sb.WriteString(" ORDER BY collection, id")
	}

	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + param(q.Limit))
	}
	return sb.String(), args
}

func filterJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getDoc(ctx context.Context, q querier, ref store.Ref, forUpdate bool) (store.Doc, error) {
	sql := `SELECT data FROM documents WHERE collection = $1 AND id = $2`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var raw []byte
	err := q.QueryRow(ctx, sql, ref.Collection, ref.ID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return store.DecodeJSON(raw)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Get(ctx context.Context, ref store.Ref) (store.Doc, error) {
	return getDoc(ctx, t.tx, ref, true)
}

func (t *pgTx) Set(ctx context.Context, ref store.Ref, data store.Doc, merge bool) error {
	if !merge {
		next, err := store.Replace(data)
		if err != nil {
			return err
		}
		return t.upsert(ctx, ref, next)
	}

	cur, err := getDoc(ctx, t.tx, ref, true)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	next, err := store.Merge(cur, data)
	if err != nil {
		return err
	}
	if cur == nil {
		return t.insert(ctx, ref, next)
	}
	return t.update(ctx, ref, next)
}

func (t *pgTx) Update(ctx context.Context, ref store.Ref, updates store.Updates) error {
	cur, err := getDoc(ctx, t.tx, ref, true)
	if err != nil {
		return err
	}
	next, err := store.Apply(cur, updates)
	if err != nil {
		return err
	}
	return t.update(ctx, ref, next)
}

func (t *pgTx) insert(ctx context.Context, ref store.Ref, d store.Doc) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
	`, ref.Collection, ref.ID, raw)
	return wrapErr(err)
}

func (t *pgTx) update(ctx context.Context, ref store.Ref, d store.Doc) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		UPDATE documents
		SET data = $3::jsonb, version = version + 1, updated_at = NOW()
		WHERE collection = $1 AND id = $2
	`, ref.Collection, ref.ID, raw)
	return wrapErr(err)
}

func (t *pgTx) upsert(ctx context.Context, ref store.Ref, d store.Doc) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data, version = documents.version + 1, updated_at = NOW()
	`, ref.Collection, ref.ID, raw)
	return wrapErr(err)
}

// retryable codes: serialization_failure, deadlock_detected, unique_violation
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return true
		}
	}
	return false
}

// wrapErr keeps Postgres errors inspectable and marks connection failures as unavailable
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}
