// Package steamapi talks to the Steam Web API endpoint that describes
// published workshop files.
package steamapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"

	"github.com/starford/workshopwatch/internal/apperr"
	"github.com/starford/workshopwatch/internal/models"
)

// DefaultURL is the GetPublishedFileDetails endpoint.
const DefaultURL = "https://api.steampowered.com/ISteamRemoteStorage/GetPublishedFileDetails/v1/"

// DefaultTimeout bounds one request when the caller passes no timeout.
const DefaultTimeout = 30 * time.Second

const maxBody = 16 << 20

// Client fetches published file details. It is safe for concurrent use.
type Client struct {
	http     *http.Client
	endpoint string
}

// New creates a Client for endpoint (DefaultURL when empty).
func New(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		endpoint: endpoint,
	}
}

// Details requests metadata for ids in one call. Entries without an id are
// skipped; a missing or malformed title or time_updated leaves that field nil.
func (c *Client) Details(ctx context.Context, ids []string) ([]models.RemoteDetails, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	form := url.Values{}
	form.Set("itemcount", strconv.Itoa(len(ids)))
	for i, id := range ids {
		form.Set(fmt.Sprintf("publishedfileids[%d]", i), id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("steamapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("steamapi: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("steamapi: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apperr.APIError{Endpoint: "steamapi", StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return parseDetails(body)
}

func parseDetails(body []byte) ([]models.RemoteDetails, error) {
	var out []models.RemoteDetails
	_, err := jsonparser.ArrayEach(body, func(entry []byte, typ jsonparser.ValueType, _ int, _ error) {
		if typ != jsonparser.Object {
			return
		}
		id, ok := scalar(entry, "publishedfileid")
		if !ok || id == "" {
			return
		}
		d := models.RemoteDetails{ID: id}
		if title, err := jsonparser.GetString(entry, "title"); err == nil {
			d.Title = &title
		}
		if ts, err := jsonparser.GetInt(entry, "time_updated"); err == nil {
			s := strconv.FormatInt(ts, 10)
			d.UpdatedAt = &s
		}
		out = append(out, d)
	}, "response", "publishedfiledetails")
	if err != nil {
		return nil, fmt.Errorf("steamapi: malformed response: %w", err)
	}
	return out, nil
}

// scalar reads a string or number field as text.
func scalar(entry []byte, key string) (string, bool) {
	v, typ, _, err := jsonparser.Get(entry, key)
	if err != nil {
		return "", false
	}
	switch typ {
	case jsonparser.String:
		s, err := jsonparser.ParseString(v)
		return s, err == nil
	case jsonparser.Number:
		return string(v), true
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
