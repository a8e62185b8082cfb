package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/starford/workshopwatch/internal/models"
	"github.com/starford/workshopwatch/internal/testutil"
)

func scanConfig(t *testing.T, root, apiURL string) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Steam.Root = root
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "db", "settings.db")
	cfg.Fetch.Delay = 0
	cfg.Watch.Enabled = false
	if apiURL != "" {
		cfg.Steam.APIURL = apiURL
	}
	return cfg
}

type scanOutput []struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Items []struct {
		ID       string  `json:"id"`
		Name     *string `json:"name"`
		Outdated *bool   `json:"outdated"`
	} `json:"items"`
}

func TestScan_LocalOnly(t *testing.T) {
	root := testutil.SteamRoot(t, testutil.Library{Apps: []testutil.App{{
		ID:    "294100",
		Name:  "RimWorld",
		Items: []models.LocalItem{{ID: "1", UpdatedAt: "100"}, {ID: "2", UpdatedAt: "200"}},
	}}})

	var buf bytes.Buffer
	err := Scan(context.Background(), &buf, false,
		WithConfig(scanConfig(t, root, "")), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var out scanOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode output: %v\n%s", err, buf.String())
	}
	if len(out) != 1 || out[0].ID != "294100" || out[0].Name != "RimWorld" {
		t.Fatalf("containers = %+v", out)
	}
	if len(out[0].Items) != 2 || out[0].Items[0].ID != "1" {
		t.Fatalf("items = %+v", out[0].Items)
	}
	if out[0].Items[0].Outdated != nil {
		t.Error("outdated should be unknown without a fetch")
	}
}

func TestScan_WithFetch(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"result":1,"resultcount":1,"publishedfiledetails":[
			{"publishedfileid":"1","title":"Better Pawns","time_updated":500}]}}`))
	}))
	defer api.Close()

	root := testutil.SteamRoot(t, testutil.Library{Apps: []testutil.App{{
		ID:    "294100",
		Name:  "RimWorld",
		Items: []models.LocalItem{{ID: "1", UpdatedAt: "100"}},
	}}})

	var buf bytes.Buffer
	err := Scan(context.Background(), &buf, true,
		WithConfig(scanConfig(t, root, api.URL)), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var out scanOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	it := out[0].Items[0]
	if it.Name == nil || *it.Name != "Better Pawns" {
		t.Errorf("name = %v, want Better Pawns", it.Name)
	}
	if it.Outdated == nil || !*it.Outdated {
		t.Errorf("outdated = %v, want true", it.Outdated)
	}
}

func TestScan_RequiresConfig(t *testing.T) {
	if err := Scan(context.Background(), io.Discard, false, WithLogOutput(io.Discard)); err == nil {
		t.Fatal("expected error without config")
	}
}
