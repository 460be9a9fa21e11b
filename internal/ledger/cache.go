package ledger

import (
	"context"
	"errors"
	"sync"

	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/store"

	"golang.org/x/sync/singleflight"
)

// Cache keeps the last fetched ledger snapshot of one user. Snapshots are
// replaced wholesale, never merged field by field, and must not be modified
// by callers.
type Cache struct {
	st  store.Store
	ref store.Ref

	mu      sync.RWMutex
	current *domain.LedgerDocument
	seq     uint64 // номер последнего начатого чтения
	applied uint64 // номер чтения, которое лежит в current

	loads     singleflight.Group
	onRefresh func(*domain.LedgerDocument)
}

func NewCache(st store.Store, ref store.Ref, onRefresh func(*domain.LedgerDocument)) *Cache {
	return &Cache{st: st, ref: ref, onRefresh: onRefresh}
}

// Refresh always reads the store. A read that finishes after a newer one
// does not replace the newer snapshot.
func (c *Cache) Refresh(ctx context.Context) (*domain.LedgerDocument, error) {
	c.mu.Lock()
	c.seq++
	mySeq := c.seq
	c.mu.Unlock()

	doc, err := c.st.Get(ctx, c.ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.mu.Lock()
			if mySeq > c.applied {
				c.current = nil
				c.applied = mySeq
			}
			c.mu.Unlock()
		}
		return nil, err
	}

	var l domain.LedgerDocument
	if err := store.Decode(doc, &l); err != nil {
		return nil, err
	}
	if l.UserID == "" {
		l.UserID = c.ref.ID
	}

	c.mu.Lock()
	if mySeq > c.applied {
		c.current = &l
		c.applied = mySeq
	}
	latest := c.current
	c.mu.Unlock()

	if latest == nil {
		return nil, store.ErrNotFound
	}
	if c.onRefresh != nil && latest == &l {
		c.onRefresh(latest)
	}
	return latest, nil
}

// Get returns the cached snapshot, loading it once if empty. Concurrent
// cold loads share one store read.
func (c *Cache) Get(ctx context.Context) (*domain.LedgerDocument, error) {
	if l := c.Peek(); l != nil {
		return l, nil
	}
	v, err, _ := c.loads.Do("load", func() (any, error) {
		return c.Refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.LedgerDocument), nil
}

// Peek returns the snapshot without touching the store
func (c *Cache) Peek() *domain.LedgerDocument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.applied = c.seq
	c.mu.Unlock()
}
