package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/workshopwatch/internal/apperr"
	"github.com/starford/workshopwatch/internal/fetch"
	"github.com/starford/workshopwatch/internal/models"
	"github.com/starford/workshopwatch/internal/overlay"
)

// ErrClosed is returned by every method after Close.
var ErrClosed = errors.New("reconcile: store closed")

// Fetcher starts a background metadata fetch.
type Fetcher interface {
	Start(ctx context.Context, ids []string) *fetch.Stream
}

// Store is the authoritative in-memory model.
//
// Concurrency model: one goroutine owns every container and the fetch state.
// Public methods send closures to it and wait; fetch results arrive on the
// active stream and are merged by the same goroutine, so no locks are used.
type Store struct {
	fetcher  Fetcher
	observer Observer
	logger   *slog.Logger

	ops     chan func(*state)
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

type state struct {
	containers *orderedmap.OrderedMap[string, *Container]
	fetch      FetchState
	last       *FetchState
	stream     *fetch.Stream
}

// Option configures a Store.
type Option func(*Store)

// WithObserver registers an observer for store changes.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store and starts its goroutine.
func New(fetcher Fetcher, opts ...Option) *Store {
	s := &Store{
		fetcher: fetcher,
		logger:  slog.Default(),
		ops:     make(chan func(*state)),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

func (s *Store) run() {
	defer close(s.stopped)

	st := &state{
		containers: orderedmap.New[string, *Container](),
		fetch:      FetchState{Phase: PhaseIdle},
	}

	for {
		var events <-chan fetch.Event
		if st.stream != nil {
			events = st.stream.Events()
		}

		select {
		case <-s.stopCh:
			if st.stream != nil {
				st.stream.Stop()
			}
			return

		case op := <-s.ops:
			op(st)

		case ev, ok := <-events:
			if !ok {
				s.finishFetch(st)
				continue
			}
			s.handleFetchEvent(st, ev)
		}
	}
}

// Close stops the store goroutine. An active fetch is cancelled and its
// remaining results are discarded.
func (s *Store) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
	<-s.stopped
}

// do runs fn on the store goroutine and waits for it to return.
func (s *Store) do(fn func(*state)) error {
	if s.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	op := func(st *state) {
		defer close(done)
		fn(st)
	}
	select {
	case s.ops <- op:
	case <-s.stopped:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-s.stopped:
		return ErrClosed
	}
}

func (s *Store) notify(c Change) {
	if s.observer != nil {
		s.observer.StoreChanged(c)
	}
}

func lookup(st *state, id string) (*Container, error) {
	c, ok := st.containers.Get(id)
	if !ok {
		return nil, fmt.Errorf("container %s: %w", id, apperr.ErrNotFound)
	}
	return c, nil
}

// Replace installs a freshly scanned container set. Containers seen before
// are rescanned so fetched and overlay state survives; new ones take their
// overlay configuration from configs. Containers absent from scans are
// dropped.
func (s *Store) Replace(scans []Scan, configs map[string]overlay.Config) error {
	return s.do(func(st *state) {
		next := orderedmap.New[string, *Container]()
		for _, sc := range scans {
			c, ok := st.containers.Get(sc.Container.ID)
			if !ok {
				c = newContainer(sc.Container, configs[sc.Container.ID].Clone())
			}
			c.Container = sc.Container
			c.Items = RescanItems(c.Items, sc.Items)
			next.Set(sc.Container.ID, c)
		}
		st.containers = next
		s.notify(Change{Kind: ChangeContainers})
	})
}

// Rescan merges a fresh local scan into one container.
func (s *Store) Rescan(containerID string, local []models.LocalItem) error {
	var err error
	if opErr := s.do(func(st *state) {
		var c *Container
		if c, err = lookup(st, containerID); err != nil {
			return
		}
		c.Items = RescanItems(c.Items, local)
		s.notify(Change{Kind: ChangeContainer, ContainerID: containerID})
	}); opErr != nil {
		return opErr
	}
	return err
}

// ApplyRemoteUpdate merges one fetched result. It reports whether the item
// was present.
func (s *Store) ApplyRemoteUpdate(containerID string, d models.RemoteDetails) (bool, error) {
	var (
		applied bool
		err     error
	)
	if opErr := s.do(func(st *state) {
		var c *Container
		if c, err = lookup(st, containerID); err != nil {
			return
		}
		applied = s.applyRemote(c, d)
	}); opErr != nil {
		return false, opErr
	}
	return applied, err
}

func (s *Store) applyRemote(c *Container, d models.RemoteDetails) bool {
	it, ok := ApplyRemoteUpdate(c.Items, d)
	if !ok {
		return false
	}
	cp := it.clone()
	s.notify(Change{Kind: ChangeItem, ContainerID: c.ID, Item: &cp})
	return true
}

// Containers returns summaries of every container in order.
func (s *Store) Containers() ([]ContainerInfo, error) {
	var out []ContainerInfo
	err := s.do(func(st *state) {
		out = make([]ContainerInfo, 0, st.containers.Len())
		for p := st.containers.Oldest(); p != nil; p = p.Next() {
			out = append(out, p.Value.info())
		}
	})
	return out, err
}

// Container returns one container summary.
func (s *Store) Container(id string) (ContainerInfo, error) {
	var (
		out ContainerInfo
		err error
	)
	if opErr := s.do(func(st *state) {
		var c *Container
		if c, err = lookup(st, id); err != nil {
			return
		}
		out = c.info()
	}); opErr != nil {
		return ContainerInfo{}, opErr
	}
	return out, err
}

// Items applies the container's overlay table to its records and returns
// copies of them in order.
func (s *Store) Items(containerID string) ([]Item, error) {
	var (
		out []Item
		err error
	)
	if opErr := s.do(func(st *state) {
		var c *Container
		if c, err = lookup(st, containerID); err != nil {
			return
		}
		ApplyOverlay(c.Items, overlay.Compute(c.Overlay, c.Snapshot))
		out = make([]Item, 0, c.Items.Len())
		for p := c.Items.Oldest(); p != nil; p = p.Next() {
			out = append(out, p.Value.clone())
		}
	}); opErr != nil {
		return nil, opErr
	}
	return out, err
}

// OverlayState is a container's overlay configuration and loaded table.
type OverlayState struct {
	Config   overlay.Config
	Snapshot overlay.Snapshot
	Loaded   bool
	Error    string
}

// Overlay returns the overlay state of a container.
func (s *Store) Overlay(containerID string) (OverlayState, error) {
	var (
		out OverlayState
		err error
	)
	if opErr := s.do(func(st *state) {
		var c *Container
		if c, err = lookup(st, containerID); err != nil {
			return
		}
		out = OverlayState{
			Config:   c.Overlay.Clone(),
			Snapshot: c.Snapshot,
			Loaded:   c.snapshotLoaded,
			Error:    c.snapshotErr,
		}
	}); opErr != nil {
		return OverlayState{}, opErr
	}
	return out, err
}

// SetOverlayConfig replaces a container's overlay configuration. A different
// source discards the loaded table.
func (s *Store) SetOverlayConfig(containerID string, cfg overlay.Config) error {
	var err error
	if opErr := s.do(func(st *state) {
		var c *Container
		if c, err = lookup(st, containerID); err != nil {
			return
		}
		if c.Overlay.SheetURL != cfg.SheetURL || c.Overlay.SheetFile != cfg.SheetFile {
			c.Snapshot = nil
			c.snapshotLoaded = false
			c.snapshotErr = ""
		}
		c.Overlay = cfg.Clone()
		s.notify(Change{Kind: ChangeContainer, ContainerID: containerID})
	}); opErr != nil {
		return opErr
	}
	return err
}

// SetSnapshot records the outcome of loading a container's table. On
// failure the previous table is discarded; tables are never partial.
func (s *Store) SetSnapshot(containerID string, rows overlay.Snapshot, loadErr error) error {
	var err error
	if opErr := s.do(func(st *state) {
		var c *Container
		if c, err = lookup(st, containerID); err != nil {
			return
		}
		c.snapshotLoaded = true
		if loadErr != nil {
			c.Snapshot = nil
			c.snapshotErr = loadErr.Error()
		} else {
			c.Snapshot = rows
			c.snapshotErr = ""
		}
		s.notify(Change{Kind: ChangeContainer, ContainerID: containerID})
	}); opErr != nil {
		return opErr
	}
	return err
}

// Fetch returns the current fetch state.
func (s *Store) Fetch() (FetchState, error) {
	var out FetchState
	err := s.do(func(st *state) { out = st.fetch })
	return out, err
}

// LastFetch returns the final state of the most recent finished fetch.
func (s *Store) LastFetch() (FetchState, bool, error) {
	var (
		out FetchState
		ok  bool
	)
	err := s.do(func(st *state) {
		if st.last != nil {
			out, ok = *st.last, true
		}
	})
	return out, ok, err
}

// StartFetch fetches remote metadata for every item of a container. It
// fails with apperr.ErrFetchBusy unless the store is idle. ctx bounds the
// fetch's network calls and should outlive the caller's request.
func (s *Store) StartFetch(ctx context.Context, containerID string) (FetchState, error) {
	var (
		out FetchState
		err error
	)
	if opErr := s.do(func(st *state) {
		if !st.fetch.Idle() {
			err = apperr.ErrFetchBusy
			return
		}
		var c *Container
		if c, err = lookup(st, containerID); err != nil {
			return
		}
		ids := make([]string, 0, c.Items.Len())
		for p := c.Items.Oldest(); p != nil; p = p.Next() {
			ids = append(ids, p.Key)
		}
		st.stream = s.fetcher.Start(ctx, ids)
		st.fetch = FetchState{
			Phase:       PhaseFetching,
			FetchID:     st.stream.ID,
			ContainerID: containerID,
			Total:       len(ids),
		}
		out = st.fetch
		s.logger.Info("reconcile: fetch started",
			slog.String("container_id", containerID),
			slog.String("fetch_id", st.stream.ID),
			slog.Int("total", len(ids)))
		s.notify(Change{Kind: ChangeFetchProgress, ContainerID: containerID, Fetch: out})
	}); opErr != nil {
		return FetchState{}, opErr
	}
	return out, err
}

func (s *Store) handleFetchEvent(st *state, ev fetch.Event) {
	switch ev.Kind {
	case fetch.KindItem:
		st.fetch.Completed++
		if c, ok := st.containers.Get(st.fetch.ContainerID); ok {
			s.applyRemote(c, ev.Item)
		}
	case fetch.KindProgress:
		s.notify(Change{Kind: ChangeFetchProgress, ContainerID: st.fetch.ContainerID, Fetch: st.fetch})
	case fetch.KindDone:
		s.finishFetch(st)
	}
}

func (s *Store) finishFetch(st *state) {
	if st.stream != nil {
		st.stream.Stop()
	}
	if st.fetch.Idle() {
		st.stream = nil
		return
	}
	final := st.fetch
	final.Phase = PhaseIdle
	st.fetch = FetchState{Phase: PhaseIdle}
	st.last = &final
	st.stream = nil
	s.logger.Info("reconcile: fetch finished",
		slog.String("container_id", final.ContainerID),
		slog.String("fetch_id", final.FetchID),
		slog.Int("completed", final.Completed),
		slog.Int("total", final.Total))
	s.notify(Change{Kind: ChangeFetchDone, ContainerID: final.ContainerID, Fetch: final})
}
