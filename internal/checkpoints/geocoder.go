package checkpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const DefaultGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

var ErrNoGeocodeResult = errors.New("checkpoints: address not found")

// Geocoder resolves an address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lng float64, err error)
}

// HTTPGeocoder calls a Google Geocoding compatible JSON API.
type HTTPGeocoder struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewHTTPGeocoder returns nil when apiKey is empty.
func NewHTTPGeocoder(apiKey, baseURL string, client *http.Client) *HTTPGeocoder {
	if apiKey == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = DefaultGeocodeURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPGeocoder{apiKey: apiKey, baseURL: baseURL, client: client}
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (g *HTTPGeocoder) Geocode(ctx context.Context, address string) (float64, float64, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("checkpoints: build geocode request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("checkpoints: geocode: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("checkpoints: geocode returned %d", resp.StatusCode)
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, 0, fmt.Errorf("checkpoints: decode geocode response: %w", err)
	}
	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return 0, 0, ErrNoGeocodeResult
	default:
		return 0, 0, fmt.Errorf("checkpoints: geocode status %s: %s", body.Status, body.ErrorMessage)
	}
	if len(body.Results) == 0 {
		return 0, 0, ErrNoGeocodeResult
	}
	loc := body.Results[0].Geometry.Location
	return loc.Lat, loc.Lng, nil
}
