package overlay

import "strings"

// Snapshot is a loaded table: rows of cells, first sheet row first. It is
// never modified after loading.
type Snapshot [][]string

// Header returns the chosen header row, if in range.
func (s Snapshot) Header(cfg Config) ([]string, bool) {
	if cfg.HeaderRow == nil || *cfg.HeaderRow < 0 || *cfg.HeaderRow >= len(s) {
		return nil, false
	}
	return s[*cfg.HeaderRow], true
}

// Overrides are the values a table assigns to item ids.
type Overrides struct {
	Status map[string]string
	Names  map[string]string
}

// Empty reports whether o assigns nothing.
func (o Overrides) Empty() bool {
	return len(o.Status) == 0 && len(o.Names) == 0
}

// Compute reads every row after the header and maps item ids to status and
// name cells. It returns empty overrides when no header is chosen, the header
// is out of range, or no id column is set. Missing cells are skipped; a later
// row for the same id wins.
func Compute(cfg Config, rows Snapshot) Overrides {
	var o Overrides
	if _, ok := rows.Header(cfg); !ok || cfg.IDCol == nil {
		return o
	}
	o.Status = make(map[string]string)
	if cfg.NameCol != nil {
		o.Names = make(map[string]string)
	}
	for _, row := range rows[*cfg.HeaderRow+1:] {
		id, ok := cell(row, cfg.IDCol)
		if !ok {
			continue
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if status, ok := cell(row, cfg.StatusCol); ok {
			o.Status[id] = status
		}
		if name, ok := cell(row, cfg.NameCol); ok {
			o.Names[id] = name
		}
	}
	return o
}

func cell(row []string, col *int) (string, bool) {
	if col == nil || *col < 0 || *col >= len(row) {
		return "", false
	}
	return row[*col], true
}
