// Package testutil provides shared test helpers for building fake Steam
// installations and settings databases.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/starford/workshopwatch/internal/keyvalue"
	"github.com/starford/workshopwatch/internal/models"
	"github.com/starford/workshopwatch/internal/settings"
	"github.com/starford/workshopwatch/internal/steam"
)

// App is one game in a fake library. An empty Name writes no app manifest.
type App struct {
	ID    string
	Name  string
	Items []models.LocalItem
}

// Library is one library folder. An empty Path places it at the Steam root.
type Library struct {
	Path string
	Apps []App
}

// SteamRoot creates a temporary Steam root holding the given libraries and
// returns its path.
func SteamRoot(t *testing.T, libs ...Library) string {
	t.Helper()
	root := t.TempDir()

	folders := keyvalue.NewObject()
	for i, lib := range libs {
		path := lib.Path
		if path == "" {
			path = root
		}
		apps := keyvalue.NewObject()
		for _, app := range lib.Apps {
			apps.Set(app.ID, keyvalue.NewLeaf("0"))
			if app.Name != "" {
				WriteAppManifest(t, path, app.ID, app.Name)
			}
			if app.Items != nil {
				WriteWorkshopManifest(t, path, app.ID, app.Items)
			}
		}
		folder := keyvalue.NewObject()
		folder.Set("path", keyvalue.NewLeaf(path))
		folder.Set("apps", apps)
		folders.Set(strconv.Itoa(i), folder)
	}
	doc := keyvalue.NewObject()
	doc.Set("libraryfolders", folders)
	write(t, root, steam.LibraryFoldersPath, keyvalue.Marshal(doc))
	return root
}

// WriteAppManifest writes appmanifest_<id>.acf naming the game.
func WriteAppManifest(t *testing.T, libPath, appID, name string) {
	t.Helper()
	state := keyvalue.NewObject()
	state.Set("appid", keyvalue.NewLeaf(appID))
	state.Set("name", keyvalue.NewLeaf(name))
	doc := keyvalue.NewObject()
	doc.Set("AppState", state)
	write(t, libPath, steam.AppManifestPath(appID), keyvalue.Marshal(doc))
}

// WriteWorkshopManifest writes appworkshop_<id>.acf listing items.
// UpdatedAt is written verbatim so tests can inject malformed values.
func WriteWorkshopManifest(t *testing.T, libPath, appID string, items []models.LocalItem) {
	t.Helper()
	installed := keyvalue.NewObject()
	for _, it := range items {
		entry := keyvalue.NewObject()
		entry.Set("size", keyvalue.NewLeaf("1024"))
		entry.Set("timeupdated", keyvalue.NewLeaf(it.UpdatedAt))
		installed.Set(it.ID, entry)
	}
	ws := keyvalue.NewObject()
	ws.Set("appid", keyvalue.NewLeaf(appID))
	ws.Set("WorkshopItemsInstalled", installed)
	doc := keyvalue.NewObject()
	doc.Set("AppWorkshop", ws)
	write(t, libPath, steam.WorkshopManifestPath(appID), keyvalue.Marshal(doc))
}

func write(t *testing.T, dir, rel string, data []byte) {
	t.Helper()
	WriteFile(t, filepath.Join(dir, filepath.FromSlash(rel)), data)
}

// WriteFile replaces path the way Steam does: write a temp file next to it,
// fsync, then rename over the target.
func WriteFile(t *testing.T, path string, data []byte) {
	t.Helper()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	tmp, err := os.CreateTemp(dir, ".workshopwatch-tmp-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		t.Fatal(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		t.Fatal(err)
	}
	if err := tmp.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		t.Fatal(err)
	}
}

// TestDB creates a temporary settings database that is automatically closed.
func TestDB(t *testing.T) *settings.DB {
	t.Helper()
	db, err := settings.Open(filepath.Join(t.TempDir(), "workshopwatch-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Logger returns a logger that only reports errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
