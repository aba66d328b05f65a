// Package geocode resolves coordinates to place names with a Nominatim
// compatible reverse geocoding service.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// DefaultURL is the public OpenStreetMap Nominatim instance.
const DefaultURL = "https://nominatim.openstreetmap.org"

// Options configures a Nominatim client.
type Options struct {
	URL       string
	UserAgent string
	Language  string
	RPS       float64
	Timeout   time.Duration
}

// Nominatim is a rate limited, memoizing reverse geocoder.
type Nominatim struct {
	baseURL   *url.URL
	userAgent string
	language  string
	client    *http.Client
	limiter   *rate.Limiter

	memo  sync.Map // string -> string
	group singleflight.Group
}

// NewNominatim creates a client. The public instance allows at most one
// request per second, which is also the default.
func NewNominatim(opts Options) (*Nominatim, error) {
	raw := opts.URL
	if raw == "" {
		raw = DefaultURL
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid geocoder URL: %w", err)
	}
	rps := opts.RPS
	if rps <= 0 {
		rps = 1
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "photo-moments"
	}
	return &Nominatim{
		baseURL:   u,
		userAgent: userAgent,
		language:  opts.Language,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

type reverseResponse struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error"`
}

// placeKeys are address parts tried in order when picking a title.
var placeKeys = []string{"city", "town", "village", "hamlet", "municipality", "suburb", "county", "state", "country"}

// Resolve implements media.Geocoder. Unknown places resolve to "".
func (n *Nominatim) Resolve(ctx context.Context, latitude, longitude float64) (string, error) {
	key := memoKey(latitude, longitude)
	if v, ok := n.memo.Load(key); ok {
		return v.(string), nil
	}

	v, err, _ := n.group.Do(key, func() (any, error) {
		if v, ok := n.memo.Load(key); ok {
			return v, nil
		}
		name, err := n.reverse(ctx, latitude, longitude)
		if err != nil {
			return "", err
		}
		n.memo.Store(key, name)
		return name, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (n *Nominatim) reverse(ctx context.Context, latitude, longitude float64) (string, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("lat", strconv.FormatFloat(latitude, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(longitude, 'f', 6, 64))
	params.Set("zoom", "14")
	params.Set("addressdetails", "1")
	u := n.baseURL.JoinPath("reverse")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	if n.language != "" {
		req.Header.Set("Accept-Language", n.language)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("reverse geocoding failed with status %d: %s", resp.StatusCode, body)
	}

	var result reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("could not unmarshal response: %w", err)
	}
	return placeName(result), nil
}

func placeName(r reverseResponse) string {
	if r.Error != "" {
		return ""
	}
	for _, k := range placeKeys {
		if v := strings.TrimSpace(r.Address[k]); v != "" {
			return v
		}
	}
	if r.Name != "" {
		return r.Name
	}
	first, _, _ := strings.Cut(r.DisplayName, ",")
	return strings.TrimSpace(first)
}

// memoKey rounds to roughly 100 m so neighbouring clusters share lookups.
func memoKey(latitude, longitude float64) string {
	return strconv.FormatFloat(latitude, 'f', 3, 64) + "," + strconv.FormatFloat(longitude, 'f', 3, 64)
}
