// Package watch rescans containers when Steam rewrites their workshop
// manifests.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/workshopwatch/internal/checksum"
	"github.com/starford/workshopwatch/internal/steam"
	"github.com/starford/workshopwatch/internal/storage"
)

// DefaultDebounce is the quiet period before a changed manifest is rescanned.
const DefaultDebounce = 500 * time.Millisecond

// Rescanner rescans one container.
type Rescanner interface {
	Rescan(ctx context.Context, containerID string) error
}

// Callback is called after a watcher-driven rescan.
type Callback func(containerID string)

// Target is a container whose manifest is watched.
type Target struct {
	ContainerID string
	LibraryPath string
}

// Watcher maps manifest changes to container rescans.
type Watcher struct {
	rescanner Rescanner
	debounce  time.Duration
	logger    *slog.Logger
	cb        Callback

	targets chan []Target
}

// New creates a Watcher. cb may be nil.
func New(r Rescanner, debounce time.Duration, logger *slog.Logger, cb Callback) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		rescanner: r,
		debounce:  debounce,
		logger:    logger,
		cb:        cb,
		targets:   make(chan []Target, 1),
	}
}

// SetTargets replaces the watched containers. It never blocks; only the
// latest set is applied.
func (w *Watcher) SetTargets(targets []Target) {
	targets = slices.Clone(targets)
	for {
		select {
		case w.targets <- targets:
			return
		default:
			select {
			case <-w.targets:
			default:
			}
		}
	}
}

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	var (
		byID    = map[string]Target{}
		sums    = map[string]string{}
		watched = map[string]struct{}{}
		pending = map[string]struct{}{}
		timer   *time.Timer
		timerCh <-chan time.Time
	)

	schedule := func(id string) {
		pending[id] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerCh = timer.C
		} else {
			timer.Reset(w.debounce)
		}
	}

	w.logger.Info("watcher: started", slog.Duration("debounce", w.debounce))

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info("watcher: stopped")
			return nil

		case targets := <-w.targets:
			for dir := range watched {
				_ = fw.Remove(dir)
			}
			clear(watched)
			clear(byID)
			clear(pending)
			sums = baseline(targets)
			for _, t := range targets {
				byID[t.ContainerID] = t
				dir := watchDir(t.LibraryPath)
				if _, ok := watched[dir]; ok {
					continue
				}
				if err := fw.Add(dir); err != nil {
					w.logger.Debug("watcher: add dir failed",
						slog.String("path", dir),
						slog.String("error", err.Error()))
					continue
				}
				watched[dir] = struct{}{}
			}
			w.logger.Debug("watcher: targets updated",
				slog.Int("containers", len(byID)),
				slog.Int("dirs", len(watched)))

		case <-timerCh:
			for id := range pending {
				t, ok := byID[id]
				if !ok {
					continue
				}
				sum := manifestSum(t)
				if sum == sums[id] {
					w.logger.Debug("watcher: manifest unchanged", slog.String("container_id", id))
					continue
				}
				sums[id] = sum
				if err := w.rescanner.Rescan(ctx, id); err != nil {
					w.logger.Warn("watcher: rescan failed",
						slog.String("container_id", id),
						slog.String("error", err.Error()))
					continue
				}
				w.logger.Debug("watcher: rescanned", slog.String("container_id", id))
				if w.cb != nil {
					w.cb(id)
				}
			}
			clear(pending)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 && filepath.Base(ev.Name) == "workshop" {
				// The workshop directory appeared under a watched steamapps.
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := fw.Add(ev.Name); err == nil {
						watched[ev.Name] = struct{}{}
					}
					for id, t := range byID {
						if watchDir(t.LibraryPath) == ev.Name {
							schedule(id)
						}
					}
				}
				continue
			}
			id, ok := steam.ContainerFromWorkshopManifest(filepath.Base(ev.Name))
			if !ok {
				continue
			}
			if _, tracked := byID[id]; !tracked {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule(id)
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// watchDir returns the library's workshop directory, or its steamapps
// directory while the workshop directory does not exist yet.
func watchDir(libraryPath string) string {
	dir := filepath.Join(libraryPath, filepath.FromSlash(steam.WorkshopDir))
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return filepath.Dir(dir)
	}
	return dir
}

// baseline returns the current manifest checksum of every target, listing
// each library's workshop directory once.
func baseline(targets []Target) map[string]string {
	libs := map[string]map[string]string{}
	out := make(map[string]string, len(targets))
	for _, t := range targets {
		lib, ok := libs[t.LibraryPath]
		if !ok {
			lib = librarySums(t.LibraryPath)
			libs[t.LibraryPath] = lib
		}
		out[t.ContainerID] = lib[t.ContainerID]
	}
	return out
}

func librarySums(libraryPath string) map[string]string {
	out := map[string]string{}
	fsys, err := storage.NewFS(libraryPath)
	if err != nil {
		return out
	}
	metas, err := fsys.List(steam.WorkshopDir, ".acf")
	if err != nil {
		return out
	}
	for _, m := range metas {
		if id, ok := steam.ContainerFromWorkshopManifest(path.Base(m.Path)); ok {
			out[id] = m.Checksum
		}
	}
	return out
}

// manifestSum returns the checksum of the target's manifest, or "" when it
// cannot be read.
func manifestSum(t Target) string {
	fsys, err := storage.NewFS(t.LibraryPath)
	if err != nil {
		return ""
	}
	data, err := fsys.Read(steam.WorkshopManifestPath(t.ContainerID))
	if err != nil {
		return ""
	}
	return checksum.Sum(data)
}
