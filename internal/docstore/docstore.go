// Package docstore is a small document store layered on SQLite.
//
// Every collection is a table with a unique key column and a JSON payload
// column. Payload fields are read and written through generated json_extract /
// json_set expressions, so documents stay schemaless while the engine still
// enforces key and indexed-field uniqueness.
//
// SQLite permits a single writer. Store serializes every mutation behind one
// process-wide mutex, held until the statement has committed, which turns
// SQLITE_BUSY contention into queued waits. Reads take no lock; WAL lets them
// run against committed data while a write is in flight.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrDuplicateKey is returned when an insert or update would violate a
	// key or unique-field constraint. Nothing is written.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrNotFound is returned when no document matches the key (and guard).
	ErrNotFound = errors.New("document not found")

	// ErrInvalidField is returned for field names that cannot be used in a
	// generated JSON path.
	ErrInvalidField = errors.New("invalid field name")

	// ErrKeyRequired is returned when inserting without a key into a
	// collection whose keys are not engine-assigned.
	ErrKeyRequired = errors.New("collection requires an explicit key")
)

// Collection describes one document table.
type Collection struct {
	Name      string
	KeyColumn string
	// AutoKey marks an INTEGER PRIMARY KEY the engine assigns when Insert gets no key.
	AutoKey bool
}

var (
	Users = Collection{Name: "users", KeyColumn: "user_id", AutoKey: true}
	Posts = Collection{Name: "posts", KeyColumn: "post_id"}
)

// Document is a raw stored row.
type Document struct {
	Key  string `db:"doc_key"`
	Body string `db:"doc"`
}

// Decode unmarshals the payload into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal([]byte(d.Body), v); err != nil {
		return fmt.Errorf("decode %s: %w", d.Key, err)
	}
	return nil
}

// IntKey parses the key of an integer-keyed collection.
func (d Document) IntKey() (int64, error) {
	return strconv.ParseInt(d.Key, 10, 64)
}

// Store owns the engine handle and the write mutex.
type Store struct {
	db      *sqlx.DB
	writeMu sync.Mutex
	clock   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for document timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// New wraps db and applies the collection schema. Applying the schema is idempotent.
func New(ctx context.Context, db *sqlx.DB, opts ...Option) (*Store, error) {
	s := &Store{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, schemaSQL)
		return err
	}); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return s, nil
}

// Now returns the store clock in UTC.
func (s *Store) Now() time.Time {
	return s.clock().UTC()
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// withWriteLock runs fn while holding the write mutex. The mutex is released
// on every return path, including panics inside fn.
func (s *Store) withWriteLock(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return fn()
}

// Insert stores payload under key. A nil key asks the engine to assign one,
// which only AutoKey collections support. The assigned or supplied key is
// returned. A key or unique-field clash yields ErrDuplicateKey with no write.
func (s *Store) Insert(ctx context.Context, c Collection, key any, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s document: %w", c.Name, err)
	}
	if key == nil && !c.AutoKey {
		return "", ErrKeyRequired
	}

	var assigned string
	err = s.withWriteLock(func() error {
		var res sql.Result
		var err error
		if key == nil {
			res, err = s.db.ExecContext(ctx,
				fmt.Sprintf(`INSERT INTO %s (doc) VALUES (?) ON CONFLICT DO NOTHING`, c.Name),
				string(body))
		} else {
			res, err = s.db.ExecContext(ctx,
				fmt.Sprintf(`INSERT INTO %s (%s, doc) VALUES (?, ?) ON CONFLICT DO NOTHING`, c.Name, c.KeyColumn),
				key, string(body))
		}
		if err != nil {
			return classify(err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return ErrDuplicateKey
		}

		if key != nil {
			assigned = fmt.Sprint(key)
			return nil
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("get last insert id: %w", err)
		}
		assigned = strconv.FormatInt(id, 10)
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicateKey) {
			log.Printf("[DocStore] Insert FAILED: collection=%s err=%v", c.Name, err)
		}
		return "", err
	}

	return assigned, nil
}

// Get loads the document stored under key.
func (s *Store) Get(ctx context.Context, c Collection, key any) (Document, error) {
	query := fmt.Sprintf(`SELECT CAST(%s AS TEXT) AS doc_key, doc FROM %s WHERE %s = ?`,
		c.KeyColumn, c.Name, c.KeyColumn)

	var d Document
	err := s.db.GetContext(ctx, &d, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get %s: %w", c.Name, err)
	}
	return d, nil
}

// GetByField loads the first document whose payload field equals value.
func (s *Store) GetByField(ctx context.Context, c Collection, field string, value any) (Document, error) {
	docs, err := s.List(ctx, c, Query{Where: []Filter{{Field: field, Value: value}}, Limit: 1})
	if err != nil {
		return Document{}, err
	}
	if len(docs) == 0 {
		return Document{}, ErrNotFound
	}
	return docs[0], nil
}

// Exists reports whether a document is stored under key.
func (s *Store) Exists(ctx context.Context, c Collection, key any) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE %s = ?)`, c.Name, c.KeyColumn)

	var exists bool
	if err := s.db.GetContext(ctx, &exists, query, key); err != nil {
		return false, fmt.Errorf("check %s exists: %w", c.Name, err)
	}
	return exists, nil
}

// Count returns the number of documents in the collection.
func (s *Store) Count(ctx context.Context, c Collection) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.Name)); err != nil {
		return 0, fmt.Errorf("count %s: %w", c.Name, err)
	}
	return n, nil
}

// List returns every document matching q.
func (s *Store) List(ctx context.Context, c Collection, q Query) ([]Document, error) {
	query, args, err := buildSelect(c, q)
	if err != nil {
		return nil, err
	}

	docs := []Document{}
	if err := s.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", c.Name, err)
	}
	return docs, nil
}

// ListPage returns page (1-based) of q with pageSize documents. It reads one
// extra row to report whether a further page exists, avoiding a COUNT query.
func (s *Store) ListPage(ctx context.Context, c Collection, q Query, page, pageSize int) ([]Document, bool, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return nil, false, fmt.Errorf("list %s: page size must be positive", c.Name)
	}

	// An offset past the largest int cannot match any row.
	if page-1 > (math.MaxInt-pageSize)/pageSize {
		return []Document{}, false, nil
	}

	q.Limit = pageSize + 1
	q.Offset = (page - 1) * pageSize

	docs, err := s.List(ctx, c, q)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}
	return docs, hasMore, nil
}

// UpdateFields sets the given payload fields on the document under key in a
// single json_set UPDATE. Guards further restrict which row may be touched;
// a missing row or failed guard yields ErrNotFound. Fields not named are left
// untouched.
func (s *Store) UpdateFields(ctx context.Context, c Collection, key any, fields map[string]any, guard ...Filter) error {
	if len(fields) == 0 {
		return nil
	}

	setExpr, setArgs, err := buildJSONSet(fields)
	if err != nil {
		return err
	}
	where, whereArgs, err := buildWhere(guard)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET doc = %s WHERE %s = ?%s`, c.Name, setExpr, c.KeyColumn, andClause(where))
	args := append(setArgs, key)
	args = append(args, whereArgs...)

	return s.execOne(ctx, c, "update", query, args...)
}

// Delete removes the document under key, optionally only when guards match.
func (s *Store) Delete(ctx context.Context, c Collection, key any, guard ...Filter) error {
	where, whereArgs, err := buildWhere(guard)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = ?%s`, c.Name, c.KeyColumn, andClause(where))
	args := append([]any{key}, whereArgs...)

	return s.execOne(ctx, c, "delete", query, args...)
}

// DeleteWhere removes every document matching filters and returns how many
// were removed. At least one filter is required.
func (s *Store) DeleteWhere(ctx context.Context, c Collection, filters ...Filter) (int64, error) {
	if len(filters) == 0 {
		return 0, fmt.Errorf("delete %s: at least one filter is required", c.Name)
	}
	where, args, err := buildWhere(filters)
	if err != nil {
		return 0, err
	}

	var removed int64
	err = s.withWriteLock(func() error {
		res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, c.Name, where), args...)
		if err != nil {
			return classify(err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		log.Printf("[DocStore] DeleteWhere FAILED: collection=%s err=%v", c.Name, err)
		return 0, fmt.Errorf("delete %s: %w", c.Name, err)
	}
	return removed, nil
}

// LookupField resolves field for each key in one query. Keys with no stored
// document are absent from the result; callers decide how to present them.
func (s *Store) LookupField(ctx context.Context, c Collection, keys []any, field string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	path, err := jsonPath(field)
	if err != nil {
		return nil, err
	}

	query, args, err := sqlx.In(fmt.Sprintf(
		`SELECT CAST(%s AS TEXT) AS doc_key, json_extract(doc, '%s') AS value FROM %s WHERE %s IN (?)`,
		c.KeyColumn, path, c.Name, c.KeyColumn), keys)
	if err != nil {
		return nil, fmt.Errorf("build lookup: %w", err)
	}

	var rows []struct {
		Key   string         `db:"doc_key"`
		Value sql.NullString `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("lookup %s.%s: %w", c.Name, field, err)
	}

	for _, r := range rows {
		if r.Value.Valid {
			result[r.Key] = r.Value.String
		}
	}
	return result, nil
}

// Reset drops and recreates every collection. Intended for tests and admin tooling.
func (s *Store) Reset(ctx context.Context) error {
	return s.withWriteLock(func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, dropSQL); err != nil {
			return fmt.Errorf("drop collections: %w", err)
		}
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("recreate collections: %w", err)
		}
		return tx.Commit()
	})
}

// execOne runs a single-row mutation under the write lock and maps zero
// affected rows to ErrNotFound.
func (s *Store) execOne(ctx context.Context, c Collection, op, query string, args ...any) error {
	err := s.withWriteLock(func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return classify(err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrDuplicateKey) {
		log.Printf("[DocStore] %s FAILED: collection=%s err=%v", op, c.Name, err)
		return fmt.Errorf("%s %s: %w", op, c.Name, err)
	}
	return err
}
