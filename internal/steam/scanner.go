// Package steam reads the local Steam installation: which games each library
// holds and which workshop items are installed for them.
package steam

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/starford/workshopwatch/internal/keyvalue"
	"github.com/starford/workshopwatch/internal/models"
	"github.com/starford/workshopwatch/internal/storage"
)

// Scanner lists containers and their installed items. All methods degrade to
// empty results; errors are returned or logged for diagnostics only.
type Scanner struct {
	logger *slog.Logger
}

// NewScanner creates a Scanner.
func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{logger: logger}
}

// ListContainers reads the library listing under root and returns one
// container per app id, in listing order. A game listed by more than one
// library is reported once, for the first library naming it.
func (s *Scanner) ListContainers(root string) ([]models.Container, error) {
	fsys, err := storage.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("steam: open root: %w", err)
	}
	doc, err := s.readDocument(fsys, LibraryFoldersPath)
	if err != nil {
		return nil, fmt.Errorf("steam: library listing: %w", err)
	}

	folders, ok := doc.Lookup("libraryfolders")
	if !ok {
		return nil, nil
	}

	var out []models.Container
	seen := make(map[string]struct{})
	for _, folder := range folders.All() {
		libPath, ok := folder.String("path")
		if !ok {
			continue
		}
		apps, ok := folder.Get("apps")
		if !ok || !apps.IsObject() {
			continue
		}
		libPath = filepath.Clean(libPath)
		lib, libErr := storage.NewFS(libPath)
		for appID := range apps.All() {
			if _, dup := seen[appID]; dup {
				s.logger.Debug("steam: duplicate app id", slog.String("app_id", appID), slog.String("library", libPath))
				continue
			}
			seen[appID] = struct{}{}

			name := models.UnknownName
			if libErr == nil {
				name = s.appName(lib, appID)
			}
			out = append(out, models.Container{ID: appID, Name: name, LibraryPath: libPath})
		}
	}
	s.logger.Debug("steam: containers listed", slog.String("root", root), slog.Int("count", len(out)))
	return out, nil
}

func (s *Scanner) appName(lib storage.Provider, appID string) string {
	doc, err := s.readDocument(lib, AppManifestPath(appID))
	if err != nil {
		return models.UnknownName
	}
	if name, ok := doc.String("AppState", "name"); ok {
		return name
	}
	return models.UnknownName
}

// ListLocalItems returns the workshop items installed for containerID in
// manifest order. Items whose timeupdated is not a non-negative integer are
// skipped.
func (s *Scanner) ListLocalItems(libraryPath, containerID string) []models.LocalItem {
	lib, err := storage.NewFS(libraryPath)
	if err != nil {
		s.logger.Debug("steam: library unavailable", slog.String("library", libraryPath), slog.String("error", err.Error()))
		return nil
	}
	doc, err := s.readDocument(lib, WorkshopManifestPath(containerID))
	if err != nil {
		return nil
	}
	installed, ok := doc.Lookup("AppWorkshop", "WorkshopItemsInstalled")
	if !ok {
		return nil
	}

	items := make([]models.LocalItem, 0, installed.Len())
	for itemID, entry := range installed.All() {
		raw, ok := entry.String("timeupdated")
		if !ok {
			continue
		}
		ts, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			continue
		}
		items = append(items, models.LocalItem{ID: itemID, UpdatedAt: strconv.FormatUint(ts, 10)})
	}
	return items
}

// readDocument reads and parses one manifest. Corrupt content is logged and
// the partial tree returned; only an unreadable file is an error.
func (s *Scanner) readDocument(fsys storage.Provider, path string) (*keyvalue.Node, error) {
	data, err := fsys.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("steam: read failed", slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil, err
	}
	doc, perr := keyvalue.Parse(data)
	if perr != nil {
		s.logger.Warn("steam: malformed manifest",
			slog.String("root", fsys.Root()),
			slog.String("path", path),
			slog.String("error", perr.Error()))
	}
	return doc, nil
}
