package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/workshopwatch/internal/apperr"
	"github.com/starford/workshopwatch/internal/itemservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc         *itemservice.Service
	fileSources bool
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithFileSources allows overlay tables to be read from local files named in
// requests.
func WithFileSources(allow bool) HandlerOption {
	return func(h *Handler) {
		h.fileSources = allow
	}
}

// NewHandler creates a new Handler.
func NewHandler(svc *itemservice.Service, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func containerID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// decodeBody reads a JSON body of at most 1 MiB into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListContainers handles GET /api/containers.
//
//	@Summary		List tracked games
//	@Tags			containers
//	@Produce		json
//	@Success		200	{object}	ContainerListResponse
//	@Security		BearerAuth
//	@Router			/containers [get]
func (h *Handler) ListContainers(w http.ResponseWriter, r *http.Request) {
	infos, err := h.svc.Containers(r.Context())
	if err != nil {
		writeError(w, "list containers", err)
		return
	}
	writeJSON(w, http.StatusOK, ContainerListResponse{Containers: nonNil(infos)})
}

// ReloadContainers handles POST /api/containers/reload.
//
//	@Summary		Rescan the Steam root
//	@Tags			containers
//	@Produce		json
//	@Success		200	{object}	ContainerListResponse
//	@Security		BearerAuth
//	@Router			/containers/reload [post]
func (h *Handler) ReloadContainers(w http.ResponseWriter, r *http.Request) {
	infos, err := h.svc.Reload(r.Context())
	if err != nil {
		writeError(w, "reload", err)
		return
	}
	writeJSON(w, http.StatusOK, ContainerListResponse{Containers: nonNil(infos)})
}

// GetContainer handles GET /api/containers/{id}.
//
//	@Summary		Get one tracked game
//	@Tags			containers
//	@Produce		json
//	@Param			id	path		string	true	"Container id"
//	@Success		200	{object}	ContainerInfo
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/containers/{id} [get]
func (h *Handler) GetContainer(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Container(r.Context(), containerID(r))
	if err != nil {
		writeError(w, "get container", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ListItems handles GET /api/containers/{id}/items.
//
//	@Summary		List merged workshop items of a game
//	@Tags			items
//	@Produce		json
//	@Param			id	path		string	true	"Container id"
//	@Success		200	{object}	ItemListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/containers/{id}/items [get]
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	id := containerID(r)
	items, err := h.svc.Items(r.Context(), id)
	if err != nil {
		writeError(w, "list items", err)
		return
	}
	writeJSON(w, http.StatusOK, ItemListResponse{ContainerID: id, Items: nonNil(items)})
}

// RescanContainer handles POST /api/containers/{id}/rescan.
//
//	@Summary		Re-read a game's workshop manifest
//	@Tags			containers
//	@Produce		json
//	@Param			id	path		string	true	"Container id"
//	@Success		200	{object}	ContainerInfo
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/containers/{id}/rescan [post]
func (h *Handler) RescanContainer(w http.ResponseWriter, r *http.Request) {
	id := containerID(r)
	if err := h.svc.Rescan(r.Context(), id); err != nil {
		writeError(w, "rescan", err)
		return
	}
	info, err := h.svc.Container(r.Context(), id)
	if err != nil {
		writeError(w, "rescan", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// StartFetch handles POST /api/containers/{id}/fetch.
//
//	@Summary		Fetch remote metadata for every item of a game
//	@Tags			fetch
//	@Produce		json
//	@Param			id	path		string	true	"Container id"
//	@Success		202	{object}	FetchState
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/containers/{id}/fetch [post]
func (h *Handler) StartFetch(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.StartFetch(r.Context(), containerID(r))
	if err != nil {
		writeError(w, "start fetch", err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

// FetchState handles GET /api/fetch.
//
//	@Summary		Current fetch state
//	@Tags			fetch
//	@Produce		json
//	@Success		200	{object}	FetchState
//	@Security		BearerAuth
//	@Router			/fetch [get]
func (h *Handler) FetchState(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.FetchState(r.Context())
	if err != nil {
		writeError(w, "fetch state", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetOverlay handles GET /api/containers/{id}/overlay.
//
//	@Summary		Overlay configuration and table state
//	@Tags			overlay
//	@Produce		json
//	@Param			id	path		string	true	"Container id"
//	@Success		200	{object}	OverlayView
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/containers/{id}/overlay [get]
func (h *Handler) GetOverlay(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Overlay(r.Context(), containerID(r))
	if err != nil {
		writeError(w, "get overlay", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SetOverlaySource handles PUT /api/containers/{id}/overlay/source.
//
//	@Summary		Select the overlay table
//	@Tags			overlay
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Container id"
//	@Param			body	body		OverlaySourceRequest	true	"Source"
//	@Success		200		{object}	OverlayView
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/containers/{id}/overlay/source [put]
func (h *Handler) SetOverlaySource(w http.ResponseWriter, r *http.Request) {
	var req OverlaySourceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Kind == itemservice.SourceFile && !h.fileSources {
		writeError(w, "set overlay source",
			fmt.Errorf("file sources require auth to be enabled: %w", apperr.ErrForbidden))
		return
	}
	v, err := h.svc.SetOverlaySource(r.Context(), containerID(r), req.Kind, req.Location)
	if err != nil {
		writeError(w, "set overlay source", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SetOverlayColumns handles PUT /api/containers/{id}/overlay/columns.
//
//	@Summary		Choose the header row and columns of the overlay table
//	@Tags			overlay
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Container id"
//	@Param			body	body		OverlayColumnsRequest	true	"Column mapping"
//	@Success		200		{object}	OverlayView
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/containers/{id}/overlay/columns [put]
func (h *Handler) SetOverlayColumns(w http.ResponseWriter, r *http.Request) {
	var req OverlayColumnsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	v, err := h.svc.SetOverlayColumns(r.Context(), containerID(r), req)
	if err != nil {
		writeError(w, "set overlay columns", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// OverlayRows handles GET /api/containers/{id}/overlay/rows.
//
//	@Summary		Leading rows of the overlay table
//	@Tags			overlay
//	@Produce		json
//	@Param			id		path		string	true	"Container id"
//	@Param			limit	query		int		false	"Max rows (default 20, 0 for all)"
//	@Success		200		{object}	OverlayRowsResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/containers/{id}/overlay/rows [get]
func (h *Handler) OverlayRows(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	rows, err := h.svc.OverlayRows(r.Context(), containerID(r), limit)
	if err != nil {
		writeError(w, "overlay rows", err)
		return
	}
	writeJSON(w, http.StatusOK, OverlayRowsResponse{Rows: rows})
}

// ReloadOverlay handles POST /api/containers/{id}/overlay/reload.
//
//	@Summary		Reload the overlay table from its source
//	@Tags			overlay
//	@Produce		json
//	@Param			id	path		string	true	"Container id"
//	@Success		200	{object}	OverlayView
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/containers/{id}/overlay/reload [post]
func (h *Handler) ReloadOverlay(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.ReloadOverlay(r.Context(), containerID(r))
	if err != nil {
		writeError(w, "reload overlay", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ListStatusColors handles GET /api/status-colors.
//
//	@Summary		Status colour palette
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	StatusColorsResponse
//	@Security		BearerAuth
//	@Router			/status-colors [get]
func (h *Handler) ListStatusColors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusColorsResponse{Colors: h.svc.StatusColors(r.Context())})
}

// SetStatusColor handles PUT /api/status-colors/{label}.
//
//	@Summary		Set the colour of a status label
//	@Tags			settings
//	@Accept			json
//	@Param			label	path	string				true	"Status label"
//	@Param			body	body	StatusColorRequest	true	"Colour"
//	@Success		204		"Colour saved"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/status-colors/{label} [put]
func (h *Handler) SetStatusColor(w http.ResponseWriter, r *http.Request) {
	var req StatusColorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.SetStatusColor(r.Context(), statusLabel(r), req.Color); err != nil {
		writeError(w, "set status color", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteStatusColor handles DELETE /api/status-colors/{label}.
//
//	@Summary		Remove a status label colour
//	@Tags			settings
//	@Param			label	path	string	true	"Status label"
//	@Success		204		"Colour removed"
//	@Security		BearerAuth
//	@Router			/status-colors/{label} [delete]
func (h *Handler) DeleteStatusColor(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteStatusColor(r.Context(), statusLabel(r)); err != nil {
		writeError(w, "delete status color", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusLabel decodes the label path parameter; labels may contain spaces.
func statusLabel(r *http.Request) string {
	raw := chi.URLParam(r, "label")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// GetRoot handles GET /api/settings/root.
//
//	@Summary		Tracked Steam root
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	RootResponse
//	@Security		BearerAuth
//	@Router			/settings/root [get]
func (h *Handler) GetRoot(w http.ResponseWriter, r *http.Request) {
	root, err := h.svc.Root()
	if err != nil {
		writeError(w, "get root", err)
		return
	}
	writeJSON(w, http.StatusOK, RootResponse{Path: root})
}

// SetRoot handles PUT /api/settings/root.
//
//	@Summary		Change the tracked Steam root and reload
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RootRequest	true	"New root"
//	@Success		200		{object}	ContainerListResponse
//	@Security		BearerAuth
//	@Router			/settings/root [put]
func (h *Handler) SetRoot(w http.ResponseWriter, r *http.Request) {
	var req RootRequest
	if !decodeBody(w, r, &req) {
		return
	}
	infos, err := h.svc.SetRoot(r.Context(), req.Path)
	if err != nil {
		writeError(w, "set root", err)
		return
	}
	writeJSON(w, http.StatusOK, ContainerListResponse{Containers: nonNil(infos)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
