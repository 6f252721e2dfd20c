// Package geocode resolves free-text address queries to ranked candidates
// with coordinates, via the Mapbox forward-geocoding API. The whole package
// is optional: without an access token the request form falls back to
// free-text addresses with (0,0) placeholder coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/example/keke-hail/internal/observability"
)

// Suggestion is one ranked address candidate.
type Suggestion struct {
	Label string  `json:"label"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
}

// Client is the interface the ride service and HTTP layer use. Enabled
// reports whether lookups are actually performed.
type Client interface {
	Enabled() bool
	Search(ctx context.Context, query string) ([]Suggestion, error)
}

// Disabled is the no-credential degradation: no suggestions, ever.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Search(ctx context.Context, query string) ([]Suggestion, error) { return nil, nil }

// minQueryLen mirrors the autocomplete form: shorter input returns nothing
// rather than spending a paid lookup.
const minQueryLen = 3

// MapboxClient queries the Mapbox places endpoint, biased toward the
// service region and filtered to one country.
type MapboxClient struct {
	Endpoint string
	Token    string
	BiasLat  float64
	BiasLng  float64
	Country  string
	Limit    int
	HTTP     *http.Client
	Cache    Cache // optional
}

func NewMapboxClient(endpoint, token string) *MapboxClient {
	return &MapboxClient{
		Endpoint: endpoint,
		Token:    token,
		Limit:    5,
		HTTP:     &http.Client{Timeout: 3 * time.Second},
	}
}

func (m *MapboxClient) Enabled() bool { return m.Token != "" }

func (m *MapboxClient) Search(ctx context.Context, query string) ([]Suggestion, error) {
	if len(query) < minQueryLen || !m.Enabled() {
		return nil, nil
	}
	if m.Cache != nil {
		if sugg, ok := m.Cache.Get(ctx, query); ok {
			observability.GeocodeCacheHits.Inc()
			return sugg, nil
		}
	}

	q := url.Values{}
	q.Set("access_token", m.Token)
	q.Set("limit", fmt.Sprintf("%d", m.Limit))
	if m.Country != "" {
		q.Set("country", m.Country)
	}
	if m.BiasLat != 0 || m.BiasLng != 0 {
		q.Set("proximity", fmt.Sprintf("%.4f,%.4f", m.BiasLng, m.BiasLat))
	}
	u := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?%s", m.Endpoint, url.PathEscape(query), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	observability.GeocodeLookups.Inc()
	resp, err := m.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mapbox status %d", resp.StatusCode)
	}

	var out struct {
		Features []struct {
			PlaceName string     `json:"place_name"`
			Center    [2]float64 `json:"center"` // lng, lat
		} `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	sugg := make([]Suggestion, 0, len(out.Features))
	for _, f := range out.Features {
		sugg = append(sugg, Suggestion{Label: f.PlaceName, Lng: f.Center[0], Lat: f.Center[1]})
	}
	if m.Cache != nil {
		m.Cache.Set(ctx, query, sugg)
	}
	return sugg, nil
}
