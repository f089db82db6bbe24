// Package watchlist keeps the set of monitored transmitter callsigns in an
// immutable snapshot that readers load without locking.
package watchlist

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/user/pskwatch/internal/model"
	"github.com/user/pskwatch/internal/util"
)

// Store is the persistence behind the watch-list.
type Store interface {
	ActiveEntries(ctx context.Context) ([]model.WatchEntry, error)
	Add(ctx context.Context, callsign string) (*model.WatchEntry, error)
	Remove(ctx context.Context, callsign string) error
	SetThresholds(ctx context.Context, callsign string, snr, distance *int) error
}

// Snapshot is an immutable view of the active entries keyed by
// normalized callsign.
type Snapshot struct {
	entries map[string]model.WatchEntry
}

// NewSnapshot builds a snapshot from active entries.
func NewSnapshot(entries []model.WatchEntry) *Snapshot {
	m := make(map[string]model.WatchEntry, len(entries))
	for _, e := range entries {
		if !e.Active {
			continue
		}
		e.Callsign = model.NormalizeCallsign(e.Callsign)
		m[e.Callsign] = e
	}
	return &Snapshot{entries: m}
}

// Lookup returns the active entry for callsign.
func (s *Snapshot) Lookup(callsign string) (model.WatchEntry, bool) {
	if s == nil {
		return model.WatchEntry{}, false
	}
	e, ok := s.entries[model.NormalizeCallsign(callsign)]
	return e, ok
}

// Contains reports whether callsign is actively monitored.
func (s *Snapshot) Contains(callsign string) bool {
	_, ok := s.Lookup(callsign)
	return ok
}

// Len returns the number of active entries.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries returns the entries sorted by callsign.
func (s *Snapshot) Entries() []model.WatchEntry {
	if s == nil {
		return nil
	}
	out := make([]model.WatchEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Callsign < out[j].Callsign })
	return out
}

// Callsigns returns the sorted active callsigns.
func (s *Snapshot) Callsigns() []string {
	entries := s.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Callsign
	}
	return out
}

// List is the process-wide watch-list. Mutations go to the store first
// and then replace the snapshot.
type List struct {
	store    Store
	snapshot atomic.Pointer[Snapshot]
	// mu serializes writers so a refresh cannot overwrite a newer snapshot
	// with an older read.
	mu       sync.Mutex
	onChange func(n int)
}

// New creates a list with an empty snapshot.
func New(store Store) *List {
	l := &List{store: store}
	l.snapshot.Store(NewSnapshot(nil))
	return l
}

// OnChange registers a callback invoked with the active count after every
// snapshot swap.
func (l *List) OnChange(fn func(n int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = fn
}

// Snapshot returns the current immutable snapshot.
func (l *List) Snapshot() *Snapshot {
	return l.snapshot.Load()
}

// Refresh reloads the snapshot from the store.
func (l *List) Refresh(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reloadLocked(ctx)
}

func (l *List) reloadLocked(ctx context.Context) error {
	entries, err := l.store.ActiveEntries(ctx)
	if err != nil {
		return fmt.Errorf("load watch-list: %w", err)
	}
	snap := NewSnapshot(entries)
	l.snapshot.Store(snap)
	if l.onChange != nil {
		l.onChange(snap.Len())
	}
	return nil
}

// Seed adds every callsign and reloads. Blank entries are skipped.
func (l *List) Seed(ctx context.Context, callsigns []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range callsigns {
		if model.NormalizeCallsign(c) == "" {
			continue
		}
		if _, err := l.store.Add(ctx, c); err != nil {
			return fmt.Errorf("seed %s: %w", c, err)
		}
	}
	if err := l.reloadLocked(ctx); err != nil {
		return err
	}
	util.Info("watch-list seeded", "configured", len(callsigns), "active", l.snapshot.Load().Len())
	return nil
}

// Add monitors callsign, re-activating it if it was removed.
func (l *List) Add(ctx context.Context, callsign string) (*model.WatchEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, err := l.store.Add(ctx, callsign)
	if err != nil {
		return nil, err
	}
	return e, l.reloadLocked(ctx)
}

// Remove stops monitoring callsign.
func (l *List) Remove(ctx context.Context, callsign string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.Remove(ctx, callsign); err != nil {
		return err
	}
	return l.reloadLocked(ctx)
}

// SetThresholds sets or clears per-callsign threshold overrides.
func (l *List) SetThresholds(ctx context.Context, callsign string, snr, distance *int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.SetThresholds(ctx, callsign, snr, distance); err != nil {
		return err
	}
	return l.reloadLocked(ctx)
}
