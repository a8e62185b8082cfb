package reconcile

import (
	"github.com/starford/workshopwatch/internal/models"
	"github.com/starford/workshopwatch/internal/overlay"
)

// Phase is the fetch state machine's state.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseFetching Phase = "fetching"
)

// FetchState describes the single fetch the store allows at a time.
// Completed counts item events received so far.
type FetchState struct {
	Phase       Phase  `json:"phase"`
	FetchID     string `json:"fetch_id,omitempty"`
	ContainerID string `json:"container_id,omitempty"`
	Total       int    `json:"total"`
	Completed   int    `json:"completed"`
}

// Idle reports whether a new fetch may start.
func (f FetchState) Idle() bool { return f.Phase == PhaseIdle }

// Scan is one container's fresh local scan, used to replace the store's
// container set.
type Scan struct {
	Container models.Container
	Items     []models.LocalItem
}

// ContainerInfo is a read-only summary of a container.
type ContainerInfo struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	LibraryPath    string         `json:"library_path"`
	ItemCount      int            `json:"item_count"`
	Overlay        overlay.Config `json:"overlay"`
	SnapshotLoaded bool           `json:"snapshot_loaded"`
	SnapshotRows   int            `json:"snapshot_rows"`
	SnapshotError  string         `json:"snapshot_error,omitempty"`
}

func (c *Container) info() ContainerInfo {
	return ContainerInfo{
		ID:             c.ID,
		Name:           c.Name,
		LibraryPath:    c.LibraryPath,
		ItemCount:      c.Items.Len(),
		Overlay:        c.Overlay.Clone(),
		SnapshotLoaded: c.snapshotLoaded,
		SnapshotRows:   len(c.Snapshot),
		SnapshotError:  c.snapshotErr,
	}
}

// ChangeKind names what a Change reports.
type ChangeKind string

const (
	ChangeItem          ChangeKind = "item"
	ChangeFetchProgress ChangeKind = "fetch.progress"
	ChangeFetchDone     ChangeKind = "fetch.done"
	ChangeContainer     ChangeKind = "container"
	ChangeContainers    ChangeKind = "containers"
)

// Change is emitted after the store mutates. Item is a copy.
type Change struct {
	Kind        ChangeKind
	ContainerID string
	Item        *Item
	Fetch       FetchState
}

// Observer receives changes on the store goroutine. It must not call back
// into the store.
type Observer interface {
	StoreChanged(Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Change)

// StoreChanged calls f.
func (f ObserverFunc) StoreChanged(c Change) { f(c) }
