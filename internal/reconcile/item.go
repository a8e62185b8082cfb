// Package reconcile owns the merged view of every container's workshop
// items. Local scans, remote fetch results, and overlay tables are merged
// into one record per item by a single goroutine.
package reconcile

import (
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/workshopwatch/internal/models"
	"github.com/starford/workshopwatch/internal/overlay"
)

// Item is the merged record for one installed workshop item.
type Item struct {
	ID              string  `json:"id"`
	DisplayName     *string `json:"display_name,omitempty"`
	CuratedStatus   *string `json:"curated_status,omitempty"`
	RemoteUpdatedAt *string `json:"remote_updated_at,omitempty"`
	LocalUpdatedAt  *string `json:"local_updated_at,omitempty"`

	// Set while DisplayName holds an overlay value rather than a remote one.
	nameFromOverlay bool
}

// Outdated reports whether the local copy is older than the published one.
// It is nil when either timestamp is missing or not an unsigned integer.
func (it Item) Outdated() *bool {
	if it.LocalUpdatedAt == nil || it.RemoteUpdatedAt == nil {
		return nil
	}
	local, err := strconv.ParseUint(*it.LocalUpdatedAt, 10, 64)
	if err != nil {
		return nil
	}
	remote, err := strconv.ParseUint(*it.RemoteUpdatedAt, 10, 64)
	if err != nil {
		return nil
	}
	outdated := local < remote
	return &outdated
}

// NameFromOverlay reports whether DisplayName came from the overlay table.
func (it Item) NameFromOverlay() bool { return it.nameFromOverlay }

// ItemMap is an insertion-ordered mapping of item id to record.
type ItemMap = orderedmap.OrderedMap[string, *Item]

func newItemMap() *ItemMap { return orderedmap.New[string, *Item]() }

// Container is one tracked game with its items and overlay state.
type Container struct {
	models.Container
	Items    *ItemMap
	Overlay  overlay.Config
	Snapshot overlay.Snapshot

	snapshotLoaded bool
	snapshotErr    string
}

func newContainer(c models.Container, cfg overlay.Config) *Container {
	return &Container{Container: c, Items: newItemMap(), Overlay: cfg}
}

func strPtr(s string) *string { return &s }

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	return strPtr(*p)
}

func (it *Item) clone() Item {
	return Item{
		ID:              it.ID,
		DisplayName:     clonePtr(it.DisplayName),
		CuratedStatus:   clonePtr(it.CuratedStatus),
		RemoteUpdatedAt: clonePtr(it.RemoteUpdatedAt),
		LocalUpdatedAt:  clonePtr(it.LocalUpdatedAt),
		nameFromOverlay: it.nameFromOverlay,
	}
}
