package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/workshopwatch/internal/models"
	"github.com/starford/workshopwatch/internal/overlay"
)

func intPtr(v int) *int { return &v }

func itemsOf(t *testing.T, m *ItemMap) []Item {
	t.Helper()
	var out []Item
	for p := m.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value.clone())
	}
	return out
}

func ids(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestRescanItems_PreservesMergedFields(t *testing.T) {
	existing := newItemMap()
	existing.Set("1", &Item{
		ID:              "1",
		DisplayName:     strPtr("Map Pack"),
		CuratedStatus:   strPtr("Working"),
		RemoteUpdatedAt: strPtr("200"),
		LocalUpdatedAt:  strPtr("100"),
	})
	existing.Set("2", &Item{ID: "2", LocalUpdatedAt: strPtr("50")})

	got := itemsOf(t, RescanItems(existing, []models.LocalItem{
		{ID: "3", UpdatedAt: "10"},
		{ID: "1", UpdatedAt: "150"},
	}))

	require.Equal(t, []string{"3", "1"}, ids(got))

	assert.Equal(t, "10", *got[0].LocalUpdatedAt)
	assert.Nil(t, got[0].DisplayName)
	assert.Nil(t, got[0].RemoteUpdatedAt)

	assert.Equal(t, "Map Pack", *got[1].DisplayName)
	assert.Equal(t, "Working", *got[1].CuratedStatus)
	assert.Equal(t, "200", *got[1].RemoteUpdatedAt)
	assert.Equal(t, "150", *got[1].LocalUpdatedAt)
}

func TestRescanItems_EmptyScanDropsEverything(t *testing.T) {
	existing := newItemMap()
	existing.Set("1", &Item{ID: "1"})
	assert.Equal(t, 0, RescanItems(existing, nil).Len())
}

func TestApplyRemoteUpdate(t *testing.T) {
	items := newItemMap()
	items.Set("1", &Item{ID: "1", DisplayName: strPtr("old"), RemoteUpdatedAt: strPtr("5"), LocalUpdatedAt: strPtr("7")})

	it, ok := ApplyRemoteUpdate(items, models.RemoteDetails{ID: "1", Title: strPtr("new")})
	require.True(t, ok)
	assert.Equal(t, "new", *it.DisplayName)
	assert.Nil(t, it.RemoteUpdatedAt, "absent remote timestamp overwrites")
	assert.Equal(t, "7", *it.LocalUpdatedAt)

	_, ok = ApplyRemoteUpdate(items, models.RemoteDetails{ID: "9", Title: strPtr("ghost")})
	assert.False(t, ok)
	_, present := items.Get("9")
	assert.False(t, present, "unknown ids are not resurrected")
}

func TestItem_Outdated(t *testing.T) {
	tests := []struct {
		name          string
		local, remote *string
		want          *bool
	}{
		{"older", strPtr("100"), strPtr("200"), boolPtr(true)},
		{"equal", strPtr("200"), strPtr("200"), boolPtr(false)},
		{"newer", strPtr("300"), strPtr("200"), boolPtr(false)},
		{"no remote", strPtr("100"), nil, nil},
		{"no local", nil, strPtr("100"), nil},
		{"garbage", strPtr("abc"), strPtr("100"), nil},
		{"negative", strPtr("100"), strPtr("-1"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Item{ID: "1", LocalUpdatedAt: tt.local, RemoteUpdatedAt: tt.remote}.Outdated()
			assert.Equal(t, tt.want, got)
		})
	}
}

func boolPtr(b bool) *bool { return &b }

func overlayFixture() (*ItemMap, overlay.Config, overlay.Snapshot) {
	items := newItemMap()
	items.Set("1", &Item{ID: "1", DisplayName: strPtr("Remote One")})
	items.Set("2", &Item{ID: "2"})
	items.Set("3", &Item{ID: "3", CuratedStatus: strPtr("stale")})

	cfg := overlay.Config{
		SheetFile: "mods.csv",
		HeaderRow: intPtr(0),
		IDCol:     intPtr(0),
		StatusCol: intPtr(1),
		NameCol:   intPtr(2),
	}
	rows := overlay.Snapshot{
		{"id", "status", "name"},
		{"1", "Working", "Sheet One"},
		{"2", "Broken", "Sheet Two"},
	}
	return items, cfg, rows
}

func TestApplyOverlay_StatusOverwritesNameFills(t *testing.T) {
	items, cfg, rows := overlayFixture()
	ApplyOverlay(items, overlay.Compute(cfg, rows))

	got := itemsOf(t, items)
	assert.Equal(t, "Working", *got[0].CuratedStatus)
	assert.Equal(t, "Remote One", *got[0].DisplayName, "remote name is kept")
	assert.False(t, got[0].NameFromOverlay())

	assert.Equal(t, "Broken", *got[1].CuratedStatus)
	assert.Equal(t, "Sheet Two", *got[1].DisplayName)
	assert.True(t, got[1].NameFromOverlay())

	assert.Nil(t, got[2].CuratedStatus, "statuses absent from the table are cleared")
}

func TestApplyOverlay_Idempotent(t *testing.T) {
	items, cfg, rows := overlayFixture()
	o := overlay.Compute(cfg, rows)
	ApplyOverlay(items, o)
	first := itemsOf(t, items)
	ApplyOverlay(items, o)
	assert.Equal(t, first, itemsOf(t, items))
}

func TestApplyOverlay_ChangedMappingLeavesNothingStale(t *testing.T) {
	items, cfg, rows := overlayFixture()
	ApplyOverlay(items, overlay.Compute(cfg, rows))

	cfg.NameCol = nil
	ApplyOverlay(items, overlay.Compute(cfg, rows))
	got := itemsOf(t, items)
	assert.Nil(t, got[1].DisplayName, "overlay name removed with the name column")
	assert.Equal(t, "Remote One", *got[0].DisplayName)

	ApplyOverlay(items, overlay.Overrides{})
	for _, it := range itemsOf(t, items) {
		assert.Nil(t, it.CuratedStatus)
	}
}

func TestApplyRemoteUpdate_ReplacesOverlayName(t *testing.T) {
	items, cfg, rows := overlayFixture()
	o := overlay.Compute(cfg, rows)
	ApplyOverlay(items, o)

	ApplyRemoteUpdate(items, models.RemoteDetails{ID: "2", Title: strPtr("Remote Two")})
	ApplyOverlay(items, o)

	it, _ := items.Get("2")
	assert.Equal(t, "Remote Two", *it.DisplayName)
	assert.False(t, it.NameFromOverlay())
}
