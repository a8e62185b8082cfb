package reconcile

import (
	"github.com/starford/workshopwatch/internal/models"
	"github.com/starford/workshopwatch/internal/overlay"
)

// RescanItems builds the item mapping for a fresh local scan. Ids missing
// from local are dropped. Retained ids keep every field except the local
// timestamp, which local replaces. New ids start with only the local
// timestamp. The result follows local's order.
func RescanItems(existing *ItemMap, local []models.LocalItem) *ItemMap {
	next := newItemMap()
	for _, li := range local {
		if it, ok := existing.Get(li.ID); ok {
			it.LocalUpdatedAt = strPtr(li.UpdatedAt)
			next.Set(li.ID, it)
			continue
		}
		next.Set(li.ID, &Item{ID: li.ID, LocalUpdatedAt: strPtr(li.UpdatedAt)})
	}
	return next
}

// ApplyRemoteUpdate stores the fetched name and timestamp for d.ID. Both
// fields are overwritten, absent values included. It reports false and
// changes nothing when the container no longer has the item.
func ApplyRemoteUpdate(items *ItemMap, d models.RemoteDetails) (*Item, bool) {
	it, ok := items.Get(d.ID)
	if !ok {
		return nil, false
	}
	it.DisplayName = clonePtr(d.Title)
	it.nameFromOverlay = false
	it.RemoteUpdatedAt = clonePtr(d.UpdatedAt)
	return it, true
}

// ApplyOverlay recomputes overlay-derived fields from scratch: previous
// overlay statuses and names are cleared, then the table's statuses are
// written and its names fill records that still have no name. Calling it
// again with the same inputs leaves the records unchanged.
func ApplyOverlay(items *ItemMap, o overlay.Overrides) {
	for p := items.Oldest(); p != nil; p = p.Next() {
		it := p.Value
		it.CuratedStatus = nil
		if it.nameFromOverlay {
			it.DisplayName = nil
			it.nameFromOverlay = false
		}
		if status, ok := o.Status[it.ID]; ok {
			it.CuratedStatus = strPtr(status)
		}
		if name, ok := o.Names[it.ID]; ok && it.DisplayName == nil {
			it.DisplayName = strPtr(name)
			it.nameFromOverlay = true
		}
	}
}
