package api

import (
	"github.com/starford/workshopwatch/internal/itemservice"
	"github.com/starford/workshopwatch/internal/overlay"
	"github.com/starford/workshopwatch/internal/reconcile"
)

// ContainerInfo summarises a tracked game (aliased from the domain layer).
type ContainerInfo = reconcile.ContainerInfo

// FetchState is the fetch state machine (aliased from the domain layer).
type FetchState = reconcile.FetchState

// ItemView is a merged item (aliased from the domain layer).
type ItemView = itemservice.ItemView

// OverlayView describes a container's overlay (aliased from the domain layer).
type OverlayView = itemservice.OverlayView

// ContainerListResponse wraps container listings.
type ContainerListResponse struct {
	Containers []ContainerInfo `json:"containers" validate:"required"`
}

// ItemListResponse wraps a container's items.
type ItemListResponse struct {
	ContainerID string     `json:"container_id" example:"294100" validate:"required"`
	Items       []ItemView `json:"items" validate:"required"`
}

// OverlaySourceRequest selects an overlay table.
type OverlaySourceRequest struct {
	Kind     string `json:"kind" example:"url" enums:"url,file,"`
	Location string `json:"location" example:"https://docs.google.com/spreadsheets/d/abc/edit"`
}

// OverlayColumnsRequest is the column mapping body.
type OverlayColumnsRequest = overlay.Columns

// OverlayRowsResponse holds leading table rows for column selection.
type OverlayRowsResponse struct {
	Rows [][]string `json:"rows" validate:"required"`
}

// StatusColorsResponse maps lower-cased labels to "#RRGGBB".
type StatusColorsResponse struct {
	Colors map[string]string `json:"colors" validate:"required"`
}

// StatusColorRequest sets one label colour.
type StatusColorRequest struct {
	Color string `json:"color" example:"#4CAF50" validate:"required"`
}

// RootResponse reports the tracked Steam root.
type RootResponse struct {
	Path string `json:"path" example:"/home/user/.local/share/Steam" validate:"required"`
}

// RootRequest changes the tracked Steam root. An empty path restores the
// default.
type RootRequest struct {
	Path string `json:"path" example:"/mnt/games/Steam"`
}
