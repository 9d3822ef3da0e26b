package docstore

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Filter is an equality predicate on a payload field.
type Filter struct {
	Field string
	Value any
}

// Query selects documents from one collection.
type Query struct {
	Where   []Filter
	OrderBy string // payload field; empty means insertion order
	Desc    bool
	Limit   int // 0 means unlimited
	Offset  int
}

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// jsonPath turns a payload field name into a JSON path literal. Field names
// are interpolated into SQL (so expression indexes can match), hence the
// strict identifier check.
func jsonPath(field string) (string, error) {
	if !fieldName.MatchString(field) {
		return "", fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	return "$." + field, nil
}

func fieldExpr(field string) (string, error) {
	path, err := jsonPath(field)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("json_extract(doc, '%s')", path), nil
}

func buildWhere(filters []Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, f := range filters {
		expr, err := fieldExpr(f.Field)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, expr+" = ?")
		args = append(args, f.Value)
	}
	return strings.Join(clauses, " AND "), args, nil
}

func andClause(where string) string {
	if where == "" {
		return ""
	}
	return " AND " + where
}

func buildSelect(c Collection, q Query) (string, []any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT CAST(%s AS TEXT) AS doc_key, doc FROM %s", c.KeyColumn, c.Name)

	where, args, err := buildWhere(q.Where)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		b.WriteString(" WHERE " + where)
	}

	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	if q.OrderBy != "" {
		expr, err := fieldExpr(q.OrderBy)
		if err != nil {
			return "", nil, err
		}
		// rowid breaks timestamp ties in insertion order.
		fmt.Fprintf(&b, " ORDER BY %s %s, rowid %s", expr, dir, dir)
	} else {
		fmt.Fprintf(&b, " ORDER BY rowid %s", dir)
	}

	if q.Limit > 0 {
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, q.Limit, q.Offset)
	}
	return b.String(), args, nil
}

// buildJSONSet renders json_set(doc, '$.a', ?, '$.b', ?, ...) with fields in
// sorted order so generated statements are stable.
func buildJSONSet(fields map[string]any) (string, []any, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("json_set(doc")
	args := make([]any, 0, len(names))
	for _, name := range names {
		path, err := jsonPath(name)
		if err != nil {
			return "", nil, err
		}
		fmt.Fprintf(&b, ", '%s', ?", path)
		args = append(args, fields[name])
	}
	b.WriteString(")")
	return b.String(), args, nil
}

// classify maps engine uniqueness failures onto ErrDuplicateKey.
func classify(err error) error {
	if isUniqueViolation(err) {
		return ErrDuplicateKey
	}
	return err
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
