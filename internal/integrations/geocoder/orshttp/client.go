// Package orshttp: клиент геокодинга OpenRouteService (GET /geocode/search).
package orshttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/ShipTrack/internal/integrations/geocoder"
	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.openrouteservice.org"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

// GeoJSON FeatureCollection; coordinates идут в порядке [lng, lat].
type searchResp struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Label string `json:"label"`
		} `json:"properties"`
	} `json:"features"`
}

func (c *Client) Resolve(ctx context.Context, address string) (models.Coordinates, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return models.Coordinates{}, errors.Wrap(err, "parse base url")
	}
	u.Path = "/geocode/search"

	q := u.Query()
	q.Set("api_key", c.apiKey)
	q.Set("text", address)
	q.Set("size", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.Coordinates{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.Coordinates{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return models.Coordinates{}, fmt.Errorf("ors rate limit (429)")
	}
	if resp.StatusCode/100 != 2 {
		return models.Coordinates{}, fmt.Errorf("ors geocode http %d", resp.StatusCode)
	}

	var r searchResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return models.Coordinates{}, errors.Wrap(err, "decode")
	}
	if len(r.Features) == 0 || len(r.Features[0].Geometry.Coordinates) < 2 {
		return models.Coordinates{}, geocoder.ErrNoResults
	}

	pt := r.Features[0].Geometry.Coordinates
	coords := models.Coordinates{Lat: pt[1], Lng: pt[0]}
	if !coords.Valid() {
		return models.Coordinates{}, fmt.Errorf("ors returned invalid coordinates %v", pt)
	}
	return coords, nil
}
