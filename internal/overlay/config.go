// Package overlay loads user-curated tables (a shared spreadsheet or a local
// CSV file) and derives per-item status and name overrides from them.
package overlay

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config selects a table and the columns to read from it. Column indices
// only make sense relative to a chosen header row.
type Config struct {
	SheetURL  string `json:"sheet_url,omitempty"`
	SheetFile string `json:"sheet_file,omitempty"`
	HeaderRow *int   `json:"header_row_index,omitempty"`
	IDCol     *int   `json:"id_col,omitempty"`
	StatusCol *int   `json:"status_col,omitempty"`
	NameCol   *int   `json:"name_col,omitempty"`
}

// Validate checks index ranges and that columns are only set alongside a
// header row.
func (c Config) Validate() error {
	needsHeader := validation.When(c.HeaderRow == nil, validation.Nil.Error("requires header_row_index"))
	return validation.ValidateStruct(&c,
		validation.Field(&c.SheetURL, validation.When(c.SheetFile != "", validation.Empty.Error("only one source may be active"))),
		validation.Field(&c.HeaderRow, validation.Min(0)),
		validation.Field(&c.IDCol, validation.Min(0), needsHeader),
		validation.Field(&c.StatusCol, validation.Min(0), needsHeader),
		validation.Field(&c.NameCol, validation.Min(0), needsHeader),
	)
}

// IsDefault reports whether c carries no user choice and need not be stored.
func (c Config) IsDefault() bool {
	return c.SheetURL == "" && c.SheetFile == "" &&
		c.HeaderRow == nil && c.IDCol == nil && c.StatusCol == nil && c.NameCol == nil
}

// HasSource reports whether a table location is configured.
func (c Config) HasSource() bool {
	return c.SheetURL != "" || c.SheetFile != ""
}

// SelectURL makes a shared spreadsheet the active source.
func (c *Config) SelectURL(u string) {
	c.SheetURL = u
	c.SheetFile = ""
	c.sourceChanged()
}

// SelectFile makes a local CSV file the active source.
func (c *Config) SelectFile(path string) {
	c.SheetFile = path
	c.SheetURL = ""
	c.sourceChanged()
}

// ClearSource removes the source and every column choice.
func (c *Config) ClearSource() {
	*c = Config{}
}

// sourceChanged drops column indices chosen for a different table unless a
// header row was explicitly kept.
func (c *Config) sourceChanged() {
	if c.HeaderRow == nil {
		c.IDCol = nil
		c.StatusCol = nil
		c.NameCol = nil
	}
}

// Columns is a column-mapping update.
type Columns struct {
	HeaderRow *int `json:"header_row_index"`
	IDCol     *int `json:"id_col"`
	StatusCol *int `json:"status_col"`
	NameCol   *int `json:"name_col"`
}

// WithColumns returns a copy of c using cols as the column mapping.
func (c Config) WithColumns(cols Columns) Config {
	c.HeaderRow = cols.HeaderRow
	c.IDCol = cols.IDCol
	c.StatusCol = cols.StatusCol
	c.NameCol = cols.NameCol
	return c
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	c.HeaderRow = clonePtr(c.HeaderRow)
	c.IDCol = clonePtr(c.IDCol)
	c.StatusCol = clonePtr(c.StatusCol)
	c.NameCol = clonePtr(c.NameCol)
	return c
}

func clonePtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
