// Package geocoder resolves free-text place strings against the internal
// geocoding worker.
package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/api/idtoken"

	"github.com/localhubhq/directory-api/internal/geo"
)

// Client calls the geocoder worker over HTTP. When no HTTP client is
// supplied it auto-configures an ID-token client for service-to-service
// auth, falling back to a plain client outside that environment.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient builds a geocoder client for the given base URL.
func NewClient(client *http.Client, baseURL string) *Client {
	if baseURL == "" {
		panic("geocoder baseURL must not be empty")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if client == nil {
		idc, err := idtoken.NewClient(context.Background(), baseURL)
		if err != nil {
			client = &http.Client{Timeout: 10 * time.Second}
		} else {
			client = idc
		}
	}
	return &Client{client: client, baseURL: baseURL}
}

// Resolve geocodes a place string to a coordinate pair.
func (c *Client) Resolve(ctx context.Context, place string) (geo.Point, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return geo.Point{}, fmt.Errorf("place must not be empty")
	}

	endpoint := c.baseURL + "/geocode?place=" + url.QueryEscape(place)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return geo.Point{}, fmt.Errorf("create geocode request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return geo.Point{}, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return geo.Point{}, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var payload struct {
		Data struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"data"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return geo.Point{}, fmt.Errorf("decode geocoder response: %w", err)
	}
	if payload.Error != "" {
		return geo.Point{}, fmt.Errorf("geocoder error: %s", payload.Error)
	}

	point := geo.Point{Lat: payload.Data.Lat, Lng: payload.Data.Lng}
	if err := point.Validate(); err != nil {
		return geo.Point{}, fmt.Errorf("geocoder returned invalid point: %w", err)
	}
	return point, nil
}
