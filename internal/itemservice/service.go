// Package itemservice coordinates the Steam scanner, the reconciliation
// store, overlay loading, and persisted settings behind one API used by the
// HTTP, MCP, and CLI front ends.
package itemservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/starford/workshopwatch/internal/apperr"
	"github.com/starford/workshopwatch/internal/overlay"
	"github.com/starford/workshopwatch/internal/reconcile"
	"github.com/starford/workshopwatch/internal/settings"
	"github.com/starford/workshopwatch/internal/statuscolor"
	"github.com/starford/workshopwatch/internal/steam"
)

// TimeLayout is the display format of item timestamps.
const TimeLayout = "2006-01-02 15:04"

// OverlayLoader loads the table an overlay configuration points at.
type OverlayLoader interface {
	Load(ctx context.Context, cfg overlay.Config) (overlay.Snapshot, error)
}

// ItemView is one merged item ready for display.
type ItemView struct {
	ID              string  `json:"id"`
	Name            *string `json:"name,omitempty"`
	Status          *string `json:"status,omitempty"`
	StatusColor     string  `json:"status_color,omitempty"`
	LocalUpdatedAt  *string `json:"local_updated_at,omitempty"`
	RemoteUpdatedAt *string `json:"remote_updated_at,omitempty"`
	LocalUpdated    string  `json:"local_updated,omitempty"`
	RemoteUpdated   string  `json:"remote_updated,omitempty"`
	Outdated        *bool   `json:"outdated"`
}

// OverlayView describes a container's overlay configuration and table.
type OverlayView struct {
	ContainerID string         `json:"container_id"`
	Config      overlay.Config `json:"config"`
	Loaded      bool           `json:"loaded"`
	Rows        int            `json:"rows"`
	Header      []string       `json:"header,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Deps are the collaborators of a Service.
type Deps struct {
	Scanner  *steam.Scanner
	Store    *reconcile.Store
	Loader   OverlayLoader
	Settings settings.Store
	Palette  *statuscolor.Palette
	Logger   *slog.Logger
	// ConfigRoot is the Steam root from the config file, used when no root
	// has been saved in settings.
	ConfigRoot string
}

// Service is the application layer over the reconciliation store.
type Service struct {
	scanner    *steam.Scanner
	store      *reconcile.Store
	loader     OverlayLoader
	settings   settings.Store
	palette    *statuscolor.Palette
	logger     *slog.Logger
	configRoot string

	// fetchCtx bounds background fetches; they outlive the request that
	// started them.
	fetchCtx context.Context

	mu          sync.Mutex
	reloadHooks []func([]reconcile.ContainerInfo)
}

// NewService creates a Service. fetchCtx should be cancelled on shutdown.
func NewService(fetchCtx context.Context, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	palette := deps.Palette
	if palette == nil {
		palette = statuscolor.DefaultPalette()
	}
	return &Service{
		scanner:    deps.Scanner,
		store:      deps.Store,
		loader:     deps.Loader,
		settings:   deps.Settings,
		palette:    palette,
		logger:     logger,
		configRoot: deps.ConfigRoot,
		fetchCtx:   fetchCtx,
	}
}

// OnReload registers fn to run after every Reload with the new container
// set.
func (s *Service) OnReload(fn func([]reconcile.ContainerInfo)) {
	s.mu.Lock()
	s.reloadHooks = append(s.reloadHooks, fn)
	s.mu.Unlock()
}

// Root returns the tracked Steam root: the saved setting, else the config
// file value, else the platform default.
func (s *Service) Root() (string, error) {
	root, err := s.settings.RootPath()
	if err != nil {
		return "", err
	}
	if root != "" {
		return root, nil
	}
	if s.configRoot != "" {
		return s.configRoot, nil
	}
	return steam.DefaultRoot(), nil
}

// SetRoot saves a new root and reloads. An empty path restores the default.
func (s *Service) SetRoot(ctx context.Context, path string) ([]reconcile.ContainerInfo, error) {
	if err := s.settings.SetRootPath(strings.TrimSpace(path)); err != nil {
		return nil, err
	}
	return s.Reload(ctx)
}

// Reload rescans the root. Containers that still exist keep their fetched
// and overlay state.
func (s *Service) Reload(_ context.Context) ([]reconcile.ContainerInfo, error) {
	root, err := s.Root()
	if err != nil {
		return nil, err
	}
	containers, err := s.scanner.ListContainers(root)
	if err != nil {
		s.logger.Warn("itemservice: list containers",
			slog.String("root", root),
			slog.String("error", err.Error()))
	}
	configs, err := s.settings.OverlayConfigs()
	if err != nil {
		return nil, err
	}

	scans := make([]reconcile.Scan, 0, len(containers))
	for _, c := range containers {
		scans = append(scans, reconcile.Scan{
			Container: c,
			Items:     s.scanner.ListLocalItems(c.LibraryPath, c.ID),
		})
	}
	if err := s.store.Replace(scans, configs); err != nil {
		return nil, err
	}

	infos, err := s.store.Containers()
	if err != nil {
		return nil, err
	}
	s.logger.Info("itemservice: reloaded",
		slog.String("root", root),
		slog.Int("containers", len(infos)))

	s.mu.Lock()
	hooks := append([]func([]reconcile.ContainerInfo){}, s.reloadHooks...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(infos)
	}
	return infos, nil
}

// Containers lists the tracked containers.
func (s *Service) Containers(_ context.Context) ([]reconcile.ContainerInfo, error) {
	return s.store.Containers()
}

// Container returns one container.
func (s *Service) Container(_ context.Context, id string) (reconcile.ContainerInfo, error) {
	return s.store.Container(id)
}

// Items returns the merged items of a container. The overlay table is
// loaded on first access when a source is configured; a failed load leaves
// the items without overlay values.
func (s *Service) Items(ctx context.Context, containerID string) ([]ItemView, error) {
	if err := s.ensureSnapshot(ctx, containerID); err != nil {
		return nil, err
	}
	items, err := s.store.Items(containerID)
	if err != nil {
		return nil, err
	}
	out := make([]ItemView, len(items))
	for i, it := range items {
		out[i] = s.view(it)
	}
	return out, nil
}

func (s *Service) view(it reconcile.Item) ItemView {
	v := ItemView{
		ID:              it.ID,
		Name:            it.DisplayName,
		Status:          it.CuratedStatus,
		LocalUpdatedAt:  it.LocalUpdatedAt,
		RemoteUpdatedAt: it.RemoteUpdatedAt,
		Outdated:        it.Outdated(),
	}
	if it.CuratedStatus != nil {
		v.StatusColor = s.palette.ColorFor(*it.CuratedStatus).Hex()
	}
	if it.LocalUpdatedAt != nil {
		v.LocalUpdated = FormatTimestamp(*it.LocalUpdatedAt)
	}
	if it.RemoteUpdatedAt != nil {
		v.RemoteUpdated = FormatTimestamp(*it.RemoteUpdatedAt)
	}
	return v
}

// FormatTimestamp renders a Unix-seconds string as TimeLayout in UTC. Other
// strings are returned unchanged.
func FormatTimestamp(raw string) string {
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return raw
	}
	return time.Unix(sec, 0).UTC().Format(TimeLayout)
}

// Rescan re-reads one container's workshop manifest.
func (s *Service) Rescan(_ context.Context, containerID string) error {
	info, err := s.store.Container(containerID)
	if err != nil {
		return err
	}
	items := s.scanner.ListLocalItems(info.LibraryPath, containerID)
	if err := s.store.Rescan(containerID, items); err != nil {
		return err
	}
	s.logger.Debug("itemservice: rescanned",
		slog.String("container_id", containerID),
		slog.Int("items", len(items)))
	return nil
}

// StartFetch begins a background metadata fetch for a container.
func (s *Service) StartFetch(_ context.Context, containerID string) (reconcile.FetchState, error) {
	return s.store.StartFetch(s.fetchCtx, containerID)
}

// FetchState returns the current fetch state.
func (s *Service) FetchState(_ context.Context) (reconcile.FetchState, error) {
	return s.store.Fetch()
}

// WaitFetch polls until no fetch is running and returns the final state of
// the last one.
func (s *Service) WaitFetch(ctx context.Context, interval time.Duration) (reconcile.FetchState, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := s.store.Fetch()
		if err != nil {
			return reconcile.FetchState{}, err
		}
		if st.Idle() {
			last, ok, err := s.store.LastFetch()
			if err != nil || !ok {
				return st, err
			}
			return last, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Overlay describes a container's overlay state.
func (s *Service) Overlay(_ context.Context, containerID string) (OverlayView, error) {
	st, err := s.store.Overlay(containerID)
	if err != nil {
		return OverlayView{}, err
	}
	v := OverlayView{
		ContainerID: containerID,
		Config:      st.Config,
		Loaded:      st.Loaded,
		Rows:        len(st.Snapshot),
		Error:       st.Error,
	}
	if h, ok := st.Snapshot.Header(st.Config); ok {
		v.Header = h
	}
	return v, nil
}

// Source kinds accepted by SetOverlaySource.
const (
	SourceURL  = "url"
	SourceFile = "file"
	SourceNone = ""
)

// SetOverlaySource selects the table for a container and loads it. Column
// choices are kept only when a header row is set.
func (s *Service) SetOverlaySource(ctx context.Context, containerID, kind, location string) (OverlayView, error) {
	st, err := s.store.Overlay(containerID)
	if err != nil {
		return OverlayView{}, err
	}
	cfg := st.Config
	location = strings.TrimSpace(location)
	switch kind {
	case SourceURL:
		if _, err := overlay.ExportURL(location); err != nil {
			return OverlayView{}, err
		}
		cfg.SelectURL(location)
	case SourceFile:
		if location == "" {
			return OverlayView{}, fmt.Errorf("file path is empty: %w", apperr.ErrInvalid)
		}
		cfg.SelectFile(location)
	case SourceNone:
		cfg.ClearSource()
	default:
		return OverlayView{}, fmt.Errorf("unknown source kind %q: %w", kind, apperr.ErrInvalid)
	}
	if err := s.saveOverlay(containerID, cfg); err != nil {
		return OverlayView{}, err
	}
	if cfg.HasSource() {
		_ = s.loadSnapshot(ctx, containerID, cfg)
	}
	return s.Overlay(ctx, containerID)
}

// SetOverlayColumns replaces the column mapping of a container.
func (s *Service) SetOverlayColumns(ctx context.Context, containerID string, cols overlay.Columns) (OverlayView, error) {
	st, err := s.store.Overlay(containerID)
	if err != nil {
		return OverlayView{}, err
	}
	if err := s.saveOverlay(containerID, st.Config.WithColumns(cols)); err != nil {
		return OverlayView{}, err
	}
	return s.Overlay(ctx, containerID)
}

func (s *Service) saveOverlay(containerID string, cfg overlay.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrInvalid, err.Error())
	}
	if err := s.settings.SaveOverlayConfig(containerID, cfg); err != nil {
		return err
	}
	return s.store.SetOverlayConfig(containerID, cfg)
}

// ReloadOverlay reloads a container's table from its source.
func (s *Service) ReloadOverlay(ctx context.Context, containerID string) (OverlayView, error) {
	st, err := s.store.Overlay(containerID)
	if err != nil {
		return OverlayView{}, err
	}
	if err := s.loadSnapshot(ctx, containerID, st.Config); err != nil {
		return OverlayView{}, err
	}
	return s.Overlay(ctx, containerID)
}

// OverlayRows returns up to limit leading rows of the loaded table, for
// choosing a header row and columns. limit <= 0 returns every row.
func (s *Service) OverlayRows(ctx context.Context, containerID string, limit int) (overlay.Snapshot, error) {
	if err := s.ensureSnapshot(ctx, containerID); err != nil {
		return nil, err
	}
	st, err := s.store.Overlay(containerID)
	if err != nil {
		return nil, err
	}
	rows := st.Snapshot
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	if rows == nil {
		rows = overlay.Snapshot{}
	}
	return rows, nil
}

func (s *Service) ensureSnapshot(ctx context.Context, containerID string) error {
	st, err := s.store.Overlay(containerID)
	if err != nil {
		return err
	}
	if st.Loaded || !st.Config.HasSource() {
		return nil
	}
	_ = s.loadSnapshot(ctx, containerID, st.Config)
	return nil
}

func (s *Service) loadSnapshot(ctx context.Context, containerID string, cfg overlay.Config) error {
	rows, err := s.loader.Load(ctx, cfg)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, apperr.ErrNoSource) {
			level = slog.LevelDebug
		}
		s.logger.Log(ctx, level, "itemservice: overlay load failed",
			slog.String("container_id", containerID),
			slog.String("error", err.Error()))
	}
	if setErr := s.store.SetSnapshot(containerID, rows, err); setErr != nil {
		return setErr
	}
	return err
}

// StatusColors returns the status palette as lower-cased label to hex.
func (s *Service) StatusColors(_ context.Context) map[string]string {
	entries := s.palette.Entries()
	out := make(map[string]string, len(entries))
	for label, c := range entries {
		out[label] = c.Hex()
	}
	return out
}

// SetStatusColor saves the colour of a status label.
func (s *Service) SetStatusColor(_ context.Context, label, hex string) error {
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("empty label: %w", apperr.ErrInvalid)
	}
	c, err := statuscolor.ParseHex(hex)
	if err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrInvalid, err.Error())
	}
	if err := s.settings.SetStatusColor(label, c); err != nil {
		return err
	}
	s.palette.Set(label, c)
	return nil
}

// DeleteStatusColor removes a saved colour; the label falls back to its
// derived colour.
func (s *Service) DeleteStatusColor(_ context.Context, label string) error {
	if err := s.settings.DeleteStatusColor(label); err != nil {
		return err
	}
	s.palette.Delete(label)
	return nil
}

// LoadPalette builds the palette from saved colours.
func LoadPalette(st settings.Store) (*statuscolor.Palette, error) {
	colors, err := st.StatusColors()
	if err != nil {
		return nil, err
	}
	return statuscolor.NewPalette(colors), nil
}
