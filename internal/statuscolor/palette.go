// Package statuscolor maps curated status labels to display colours.
package statuscolor

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Color is an opaque 24-bit RGB colour.
type Color struct {
	R, G, B uint8
}

// ParseHex parses "#RRGGBB" (the leading # is optional).
func ParseHex(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return Color{}, fmt.Errorf("statuscolor: invalid hex colour %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("statuscolor: invalid hex colour %q: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// Hex formats c as "#RRGGBB".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// MarshalText implements encoding.TextMarshaler.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Color) UnmarshalText(b []byte) error {
	parsed, err := ParseHex(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Defaults is the palette seeded on first start, keyed by label as shown.
var Defaults = map[string]string{
	"Functional":      "#00AA00",
	"Broken":          "#F44336",
	"Outdated":        "#F44336",
	"Not updated":     "#F44336",
	"Unmaintained":    "#888888",
	"Abandoned":       "#555555",
	"Semi-Functional": "#FFA500",
	"Yes":             "#4CAF50",
	"No":              "#F44336",
	"WIP":             "#42A5F5",
	"Beta":            "#AB47BC",
	"Deprecated":      "#757575",
	"Stable":          "#388E3C",
	"Testing":         "#FFB300",
	"Compatible":      "#00897B",
	"Incompatible":    "#E57373",
	"Updated":         "#66BB6A",
	"Legacy":          "#8D6E63",
}

// Key normalises a label for lookup.
func Key(label string) string {
	return strings.ToLower(label)
}

// Fallback derives a stable colour for a label with no configured entry.
func Fallback(label string) Color {
	h := xxhash.Sum64String(Key(label))
	return Color{R: uint8(h >> 16), G: uint8(h >> 8), B: uint8(h)}
}

// Palette is a concurrency-safe label → colour table.
type Palette struct {
	mu    sync.RWMutex
	known map[string]Color
}

// NewPalette builds a palette from entries; keys are lower-cased.
func NewPalette(entries map[string]Color) *Palette {
	p := &Palette{known: make(map[string]Color, len(entries))}
	for k, c := range entries {
		p.known[Key(k)] = c
	}
	return p
}

// DefaultPalette returns a palette holding Defaults.
func DefaultPalette() *Palette {
	entries := make(map[string]Color, len(Defaults))
	for k, v := range Defaults {
		c, err := ParseHex(v)
		if err != nil {
			panic(err)
		}
		entries[k] = c
	}
	return NewPalette(entries)
}

// ColorFor returns the configured colour for label, or its fallback.
func (p *Palette) ColorFor(label string) Color {
	p.mu.RLock()
	c, ok := p.known[Key(label)]
	p.mu.RUnlock()
	if ok {
		return c
	}
	return Fallback(label)
}

// Set assigns a colour to label.
func (p *Palette) Set(label string, c Color) {
	p.mu.Lock()
	p.known[Key(label)] = c
	p.mu.Unlock()
}

// Delete removes label so it falls back to its derived colour.
func (p *Palette) Delete(label string) {
	p.mu.Lock()
	delete(p.known, Key(label))
	p.mu.Unlock()
}

// Entries returns a copy of the configured colours.
func (p *Palette) Entries() map[string]Color {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.known)
}
