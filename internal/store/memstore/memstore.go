// Package memstore is an in-process store.Store with optimistic transactions.
// It backs tests and STORE_DRIVER=memory.
package memstore

import (
	"context"
	"sort"
	"sync"

	"rewards_webapp/internal/store"
)

type entry struct {
	ref     store.Ref
	data    store.Doc
	version int64
}

type Store struct {
	mu          sync.Mutex
	docs        map[string]*entry
	maxAttempts int

	// beforeCommit runs between a transaction body and its commit; tests use it
	// to inject concurrent writes.
	beforeCommit func(attempt int)
}

type Option func(*Store)

func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBeforeCommit installs a hook that runs before every commit attempt
func WithBeforeCommit(fn func(attempt int)) Option {
	return func(s *Store) { s.beforeCommit = fn }
}

func New(opts ...Option) *Store {
	s := &Store{
		docs:        make(map[string]*entry),
		maxAttempts: store.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Get(ctx context.Context, ref store.Ref) (store.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[ref.Path()]
	if !ok {
		return nil, store.ErrNotFound
	}
	return store.Clone(e.data), nil
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
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &memTx{s: s, reads: map[string]int64{}, writes: map[string]*entry{}}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if s.beforeCommit != nil {
			s.beforeCommit(attempt)
		}
		if s.commit(tx) {
			return nil
		}
	}
	return store.ErrConflict
}

func (s *Store) commit(tx *memTx) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, version := range tx.reads {
		var cur int64
		if e, ok := s.docs[path]; ok {
			cur = e.version
		}
		if cur != version {
			return false
		}
	}
	for path, w := range tx.writes {
		var version int64
		if e, ok := s.docs[path]; ok {
			version = e.version
		}
		s.docs[path] = &entry{ref: w.ref, data: w.data, version: version + 1}
	}
	return true
}

func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var out []store.Snapshot
	for _, e := range s.docs {
		if !q.Matches(e.ref.Collection) || !matchesWhere(e.data, q.Where) {
			continue
		}
		out = append(out, store.Snapshot{Ref: e.ref, Data: store.Clone(e.data)})
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderBy == "" {
			return out[i].Ref.Path() < out[j].Ref.Path()
		}
		a, _ := store.Lookup(out[i].Data, q.OrderBy)
		b, _ := store.Lookup(out[j].Data, q.OrderBy)
		c := store.Compare(a, b)
		if c == 0 {
			return out[i].Ref.Path() < out[j].Ref.Path()
		}
		if q.Desc {
			return c > 0
		}
		return c < 0
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matchesWhere(d store.Doc, where []store.Filter) bool {
	for _, f := range where {
		v, ok := store.Lookup(d, f.Field)
		if !ok || !store.Equal(v, f.Value) {
			return false
		}
	}
	return true
}

// memTx stages writes and remembers the version of every document it touched
type memTx struct {
	s      *Store
	reads  map[string]int64
	writes map[string]*entry
}

// current returns the transaction's view of a document, nil if absent
func (t *memTx) current(ref store.Ref) store.Doc {
	path := ref.Path()
	if w, ok := t.writes[path]; ok {
		return w.data
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	e, ok := t.s.docs[path]
	if _, seen := t.reads[path]; !seen {
		if ok {
			t.reads[path] = e.version
		} else {
			t.reads[path] = 0
		}
	}
	if !ok {
		return nil
	}
	return e.data
}

func (t *memTx) Get(ctx context.Context, ref store.Ref) (store.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := t.current(ref)
	if d == nil {
		return nil, store.ErrNotFound
	}
	return store.Clone(d), nil
}

func (t *memTx) Set(ctx context.Context, ref store.Ref, data store.Doc, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	base := t.current(ref)
	var (
		next store.Doc
		err  error
	)
	if merge {
		next, err = store.Merge(base, data)
	} else {
		next, err = store.Replace(data)
	}
	if err != nil {
		return err
	}
	t.writes[ref.Path()] = &entry{ref: ref, data: next}
	return nil
}

func (t *memTx) Update(ctx context.Context, ref store.Ref, updates store.Updates) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	base := t.current(ref)
	if base == nil {
		return store.ErrNotFound
	}
	next, err := store.Apply(base, updates)
	if err != nil {
		return err
	}
	t.writes[ref.Path()] = &entry{ref: ref, data: next}
	return nil
}
