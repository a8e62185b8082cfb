package steam

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Paths below a Steam root or library directory, slash separated.
const (
	LibraryFoldersPath = "steamapps/libraryfolders.vdf"
	WorkshopDir        = "steamapps/workshop"

	workshopPrefix = "appworkshop_"
	manifestSuffix = ".acf"
)

// AppManifestPath returns the app manifest location for containerID.
func AppManifestPath(containerID string) string {
	return "steamapps/appmanifest_" + containerID + manifestSuffix
}

// WorkshopManifestPath returns the workshop install manifest location for
// containerID.
func WorkshopManifestPath(containerID string) string {
	return WorkshopDir + "/" + workshopPrefix + containerID + manifestSuffix
}

// ContainerFromWorkshopManifest extracts the container id from a workshop
// manifest file name such as appworkshop_294100.acf.
func ContainerFromWorkshopManifest(name string) (string, bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, workshopPrefix) || !strings.HasSuffix(base, manifestSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(base, workshopPrefix), manifestSuffix)
	return id, id != ""
}

// DefaultRoot returns the conventional Steam installation directory for the
// running OS, or "" when none is known.
func DefaultRoot() string {
	switch runtime.GOOS {
	case "windows":
		return `C:\Program Files (x86)\Steam`
	case "linux":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".local", "share", "Steam")
		}
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", "Steam")
		}
	}
	return ""
}
