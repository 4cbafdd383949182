package index

import (
	"context"
	"sync"
	"sync/atomic"

	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/pattern"
)

// Holder publishes index snapshots. Readers call Load once per trigger and
// keep the snapshot for the whole attempt; rebuilds never block them.
type Holder struct {
	mu      sync.Mutex // serializes rebuilds
	cur     atomic.Pointer[Index]
	version atomic.Uint64
}

// NewHolder starts with an empty index over reg.
func NewHolder(reg *palette.Registry) *Holder {
	h := &Holder{}
	h.cur.Store(Empty(reg))
	return h
}

func (h *Holder) Load() *Index { return h.cur.Load() }

func (h *Holder) Version() uint64 { return h.version.Load() }

// Rebuild builds a complete index and swaps it in. On error the active index
// is untouched.
func (h *Holder) Rebuild(ctx context.Context, reg *palette.Registry, patterns []*pattern.Pattern, opts Options) ([]error, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ix, errs, err := Build(ctx, reg, patterns, opts)
	if err != nil {
		return errs, err
	}
	ix.Version = h.version.Load() + 1
	h.cur.Store(ix)
	h.version.Store(ix.Version)
	return errs, nil
}
