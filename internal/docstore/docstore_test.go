package docstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"postboard/internal/database"
)

type testDoc struct {
	Name  string `json:"name"`
	Owner int64  `json:"owner"`
	Note  string `json:"note"`
	Stamp string `json:"stamp"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), 5000)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	s, err := New(context.Background(), db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsert_AssignsKeyForAutoKeyCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key, err := s.Insert(ctx, Users, nil, map[string]any{"username": "alice"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if key == "" {
		t.Fatal("expected an assigned key")
	}

	doc, err := s.Get(ctx, Users, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	var got map[string]any
	if err := doc.Decode(&got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got["username"] != "alice" {
		t.Errorf("username = %v, want alice", got["username"])
	}
}

func TestInsert_DeletedAutoKeyNotReused(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Insert(ctx, Users, nil, map[string]any{"username": "alice"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := s.Delete(ctx, Users, first); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	second, err := s.Insert(ctx, Users, nil, map[string]any{"username": "mallory"})

	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if second == first {
		t.Errorf("key %s was handed out again after delete", first)
	}
}

func TestInsert_RequiresKeyForTextKeyedCollection(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Insert(context.Background(), Posts, nil, testDoc{Name: "x"})
	if !errors.Is(err, ErrKeyRequired) {
		t.Errorf("error = %v, want %v", err, ErrKeyRequired)
	}
}

func TestInsert_DuplicateKeyLeavesOriginal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Insert(ctx, Posts, "p1", testDoc{Name: "first"}); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}

	_, err := s.Insert(ctx, Posts, "p1", testDoc{Name: "second"})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("error = %v, want %v", err, ErrDuplicateKey)
	}

	doc, err := s.Get(ctx, Posts, "p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	var got testDoc
	doc.Decode(&got)
	if got.Name != "first" {
		t.Errorf("name = %q, want %q", got.Name, "first")
	}
}

func TestInsert_DuplicateUniqueFieldRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Insert(ctx, Users, nil, map[string]any{"username": "bob"}); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	_, err := s.Insert(ctx, Users, nil, map[string]any{"username": "bob"})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("error = %v, want %v", err, ErrDuplicateKey)
	}

	n, err := s.Count(ctx, Users)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestInsert_ConcurrentSameUsernameExactlyOneWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	results := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.Insert(ctx, Users, nil, map[string]any{"username": "carol"})
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateKey):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != writers-1 {
		t.Errorf("ok=%d dup=%d, want ok=1 dup=%d", ok, dup, writers-1)
	}
}

func TestGet_MissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), Posts, "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want %v", err, ErrNotFound)
	}
}

func TestGetByField(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Insert(ctx, Users, nil, map[string]any{"username": "dave"})
	key, _ := s.Insert(ctx, Users, nil, map[string]any{"username": "erin"})

	doc, err := s.GetByField(ctx, Users, "username", "erin")
	if err != nil {
		t.Fatalf("GetByField failed: %v", err)
	}
	if doc.Key != key {
		t.Errorf("key = %q, want %q", doc.Key, key)
	}

	// Exact match only: a substring must not resolve.
	if _, err := s.GetByField(ctx, Users, "username", "eri"); !errors.Is(err, ErrNotFound) {
		t.Errorf("substring lookup error = %v, want %v", err, ErrNotFound)
	}
}

func TestGetByField_RejectsUnsafeFieldName(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetByField(context.Background(), Users, "username') OR 1=1 --", "x")
	if !errors.Is(err, ErrInvalidField) {
		t.Errorf("error = %v, want %v", err, ErrInvalidField)
	}
}

func TestListPage_HasMore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		stamp := fmt.Sprintf("2026-01-01 00:00:%02d", i)
		if _, err := s.Insert(ctx, Posts, fmt.Sprintf("p%02d", i), testDoc{Stamp: stamp}); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	q := Query{OrderBy: "stamp", Desc: true}
	tests := []struct {
		page        int
		wantLen     int
		wantHasMore bool
		wantFirst   string
	}{
		{page: 1, wantLen: 10, wantHasMore: true, wantFirst: "p24"},
		{page: 2, wantLen: 10, wantHasMore: true, wantFirst: "p14"},
		{page: 3, wantLen: 5, wantHasMore: false, wantFirst: "p04"},
		{page: 4, wantLen: 0, wantHasMore: false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page%d", tt.page), func(t *testing.T) {
			docs, hasMore, err := s.ListPage(ctx, Posts, q, tt.page, 10)
			if err != nil {
				t.Fatalf("ListPage failed: %v", err)
			}
			if len(docs) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(docs), tt.wantLen)
			}
			if hasMore != tt.wantHasMore {
				t.Errorf("hasMore = %v, want %v", hasMore, tt.wantHasMore)
			}
			if tt.wantFirst != "" && len(docs) > 0 && docs[0].Key != tt.wantFirst {
				t.Errorf("first = %q, want %q", docs[0].Key, tt.wantFirst)
			}
		})
	}
}

func TestListPage_HugePageIsEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.Insert(ctx, Posts, fmt.Sprintf("p%d", i), testDoc{})
	}

	docs, hasMore, err := s.ListPage(ctx, Posts, Query{}, math.MaxInt, 10)

	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if len(docs) != 0 || hasMore {
		t.Errorf("got %d docs hasMore=%v, want an empty last page", len(docs), hasMore)
	}
}

func TestList_FiltersOnPayloadField(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Insert(ctx, Posts, "a", testDoc{Owner: 1})
	s.Insert(ctx, Posts, "b", testDoc{Owner: 2})
	s.Insert(ctx, Posts, "c", testDoc{Owner: 1})

	docs, err := s.List(ctx, Posts, Query{Where: []Filter{{Field: "owner", Value: int64(1)}}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len = %d, want 2", len(docs))
	}
	if docs[0].Key != "a" || docs[1].Key != "c" {
		t.Errorf("keys = %q,%q want a,c", docs[0].Key, docs[1].Key)
	}
}

func TestUpdateFields_TouchesOnlyNamedFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Insert(ctx, Posts, "p", testDoc{Name: "orig", Owner: 7, Note: "keep"})

	if err := s.UpdateFields(ctx, Posts, "p", map[string]any{"name": "edited"}); err != nil {
		t.Fatalf("UpdateFields failed: %v", err)
	}

	doc, _ := s.Get(ctx, Posts, "p")
	var got testDoc
	doc.Decode(&got)
	if got.Name != "edited" {
		t.Errorf("name = %q, want edited", got.Name)
	}
	if got.Note != "keep" || got.Owner != 7 {
		t.Errorf("untouched fields changed: %+v", got)
	}
}

func TestUpdateFields_GuardMismatchIsNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Insert(ctx, Posts, "p", testDoc{Name: "orig", Owner: 7})

	err := s.UpdateFields(ctx, Posts, "p", map[string]any{"name": "hijack"},
		Filter{Field: "owner", Value: int64(8)})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, ErrNotFound)
	}

	doc, _ := s.Get(ctx, Posts, "p")
	var got testDoc
	doc.Decode(&got)
	if got.Name != "orig" {
		t.Errorf("name = %q, want orig", got.Name)
	}
}

func TestUpdateFields_UniqueFieldCollision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Insert(ctx, Users, nil, map[string]any{"username": "frank"})
	key, _ := s.Insert(ctx, Users, nil, map[string]any{"username": "grace"})

	err := s.UpdateFields(ctx, Users, key, map[string]any{"username": "frank"})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("error = %v, want %v", err, ErrDuplicateKey)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Insert(ctx, Posts, "p", testDoc{Owner: 1})

	if err := s.Delete(ctx, Posts, "p", Filter{Field: "owner", Value: int64(2)}); !errors.Is(err, ErrNotFound) {
		t.Errorf("guarded delete error = %v, want %v", err, ErrNotFound)
	}
	if err := s.Delete(ctx, Posts, "p", Filter{Field: "owner", Value: int64(1)}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if exists, _ := s.Exists(ctx, Posts, "p"); exists {
		t.Error("document should be gone")
	}
	if err := s.Delete(ctx, Posts, "p"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want %v", err, ErrNotFound)
	}
}

func TestDeleteWhere(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Insert(ctx, Posts, "a", testDoc{Owner: 1})
	s.Insert(ctx, Posts, "b", testDoc{Owner: 2})
	s.Insert(ctx, Posts, "c", testDoc{Owner: 1})

	if _, err := s.DeleteWhere(ctx, Posts); err == nil {
		t.Error("DeleteWhere without filters should fail")
	}

	n, err := s.DeleteWhere(ctx, Posts, Filter{Field: "owner", Value: int64(1)})
	if err != nil {
		t.Fatalf("DeleteWhere failed: %v", err)
	}
	if n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}
	if count, _ := s.Count(ctx, Posts); count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestLookupField_MissingKeysAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	k1, _ := s.Insert(ctx, Users, nil, map[string]any{"username": "heidi"})
	k2, _ := s.Insert(ctx, Users, nil, map[string]any{"username": "ivan"})

	got, err := s.LookupField(ctx, Users, []any{k1, k2, "999"}, "username")
	if err != nil {
		t.Fatalf("LookupField failed: %v", err)
	}
	if got[k1] != "heidi" || got[k2] != "ivan" {
		t.Errorf("lookup = %v", got)
	}
	if _, ok := got["999"]; ok {
		t.Error("missing key should be absent")
	}
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Insert(ctx, Users, nil, map[string]any{"username": "judy"})
	s.Insert(ctx, Posts, "p", testDoc{})

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	for _, c := range []Collection{Users, Posts} {
		if n, _ := s.Count(ctx, c); n != 0 {
			t.Errorf("%s count = %d, want 0", c.Name, n)
		}
	}

	// Unique index must survive the reset.
	s.Insert(ctx, Users, nil, map[string]any{"username": "judy"})
	if _, err := s.Insert(ctx, Users, nil, map[string]any{"username": "judy"}); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("error = %v, want %v", err, ErrDuplicateKey)
	}
}
