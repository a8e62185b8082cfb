// Package models defines the domain types shared across workshopwatch packages.
package models

import "time"

// UnknownName is the display name used when a container's app manifest is
// missing or has no name.
const UnknownName = "<unknown>"

// Container is a game installed in one Steam library.
type Container struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	LibraryPath string `json:"library_path"`
}

// LocalItem is one installed workshop item as recorded by the local manifest.
// UpdatedAt always holds a base-10 integer.
type LocalItem struct {
	ID        string `json:"id"`
	UpdatedAt string `json:"updated_at"`
}

// RemoteDetails is the metadata returned for one published file. Fields the
// service omitted or sent malformed are nil.
type RemoteDetails struct {
	ID        string  `json:"id"`
	Title     *string `json:"title,omitempty"`
	UpdatedAt *string `json:"updated_at,omitempty"`
}

// FileMeta describes a file inside a library directory.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
