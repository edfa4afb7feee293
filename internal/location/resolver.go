package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domain "github.com/oshokin/sos-guard/internal/domain/sos"
	"github.com/oshokin/sos-guard/internal/logger"
)

// Resolver produces a best-effort location bundle for an activation.
// It never fails the caller: every degradation path yields a usable
// LocationInfo with an appropriate source tag.
type Resolver struct {
	// client executes geolocation HTTP requests.
	client *http.Client
	// geolocateURL returns approximate location for the caller's IP.
	geolocateURL string
	// reverseGeocodeURL resolves coordinates into a display address.
	reverseGeocodeURL string
}

// Option configures resolver behaviour.
type Option func(*Resolver)

// WithGeolocateURL overrides the IP-geolocation endpoint. Intended for tests.
func WithGeolocateURL(u string) Option {
	return func(r *Resolver) {
		if u != "" {
			r.geolocateURL = u
		}
	}
}

// WithReverseGeocodeURL overrides the reverse-geocoding endpoint. Intended for tests.
func WithReverseGeocodeURL(u string) Option {
	return func(r *Resolver) {
		if u != "" {
			r.reverseGeocodeURL = u
		}
	}
}

const (
	// defaultGeolocateURL is the free IP-geolocation endpoint.
	defaultGeolocateURL = "https://ipinfo.io/json"
	// defaultReverseGeocodeURL is the free OpenStreetMap reverse-geocoding endpoint.
	defaultReverseGeocodeURL = "https://nominatim.openstreetmap.org/reverse"

	// reverseGeocodeTimeout bounds the optional address lookup on the precise path.
	// Shorter than the resolver timeout: the address is decoration, not the payload.
	reverseGeocodeTimeout = 5 * time.Second

	// unknownSentinel fills fields that could not be determined.
	unknownSentinel = "Unknown"
	// unavailableMessage replaces the map link when no location exists.
	unavailableMessage = "Location unavailable"
)

// NewResolver creates a resolver whose outbound requests are bounded by timeout.
func NewResolver(timeout time.Duration, opts ...Option) *Resolver {
	r := &Resolver{
		client:            &http.Client{Timeout: timeout},
		geolocateURL:      defaultGeolocateURL,
		reverseGeocodeURL: defaultReverseGeocodeURL,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns a location bundle. With a hint the result is precise and the
// address is reverse-geocoded best-effort; without one, IP geolocation is
// attempted and failures degrade to an unavailable-tagged sentinel bundle.
func (r *Resolver) Resolve(ctx context.Context, hint *domain.Coordinates) *domain.LocationInfo {
	if hint != nil {
		return r.resolvePrecise(ctx, *hint)
	}

	return r.resolveByIP(ctx)
}

// resolvePrecise builds a precise-tagged bundle from device coordinates.
func (r *Resolver) resolvePrecise(ctx context.Context, coords domain.Coordinates) *domain.LocationInfo {
	address, err := r.reverseGeocode(ctx, coords)
	if err != nil {
		logger.WarnKV(ctx, "Reverse geocoding failed, falling back to raw coordinates", "error", err)

		address = fmt.Sprintf("%.6f, %.6f", coords.Latitude, coords.Longitude)
	}

	return &domain.LocationInfo{
		Coordinates: &coords,
		Address:     address,
		MapsLink:    fmt.Sprintf("https://www.google.com/maps?q=%.6f,%.6f&z=16", coords.Latitude, coords.Longitude),
		Source:      domain.SourcePrecise,
	}
}

// geolocateResponse is the subset of the ipinfo.io payload we consume.
type geolocateResponse struct {
	// Loc is "lat,lon".
	Loc string `json:"loc"`
	// City is the resolved city name.
	City string `json:"city"`
	// Country is the resolved country code.
	Country string `json:"country"`
}

// resolveByIP builds an approximate-tagged bundle from IP geolocation,
// degrading to sentinel values on any failure.
func (r *Resolver) resolveByIP(ctx context.Context) *domain.LocationInfo {
	var payload geolocateResponse
	if err := r.getJSON(ctx, r.geolocateURL, &payload); err != nil {
		logger.WarnKV(ctx, "IP geolocation failed", "error", err)

		return &domain.LocationInfo{
			Address:  unknownSentinel,
			MapsLink: unavailableMessage,
			Source:   domain.SourceUnavailable,
		}
	}

	coordinates := parseLoc(payload.Loc)

	// A missing or malformed loc field degrades the link, not the whole
	// bundle: the textual address may still be usable.
	mapsLink := unavailableMessage
	if coordinates != nil {
		mapsLink = "https://www.google.com/maps?q=" + url.QueryEscape(payload.Loc)
	}

	info := &domain.LocationInfo{
		Coordinates: coordinates,
		Address:     joinAddress(payload.City, payload.Country),
		MapsLink:    mapsLink,
		Source:      domain.SourceApproximate,
	}

	logger.InfoKV(ctx, "Location retrieved", "address", info.Address)

	return info
}

// reverseGeocodeResponse is the subset of the Nominatim payload we consume.
type reverseGeocodeResponse struct {
	// DisplayName is the full human-readable address.
	DisplayName string `json:"display_name"`
}

// reverseGeocode resolves coordinates into a display address.
func (r *Resolver) reverseGeocode(ctx context.Context, coords domain.Coordinates) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, reverseGeocodeTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s?format=json&lat=%.6f&lon=%.6f&zoom=18",
		r.reverseGeocodeURL, coords.Latitude, coords.Longitude)

	var payload reverseGeocodeResponse
	if err := r.getJSON(ctx, endpoint, &payload); err != nil {
		return "", err
	}

	if payload.DisplayName == "" {
		return "", fmt.Errorf("empty display name from %s", r.reverseGeocodeURL)
	}

	return payload.DisplayName, nil
}

// getJSON executes a GET request and decodes a JSON body into out.
func (r *Resolver) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only body.

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// parseLoc converts an "lat,lon" string into coordinates, nil when malformed.
func parseLoc(loc string) *domain.Coordinates {
	parts := strings.Split(loc, ",")
	if len(parts) != 2 {
		return nil
	}

	lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)

	if latErr != nil || lonErr != nil {
		return nil
	}

	return &domain.Coordinates{Latitude: lat, Longitude: lon}
}

// joinAddress assembles "City, Country" with sentinels for missing parts.
func joinAddress(city, country string) string {
	if city == "" {
		city = unknownSentinel
	}

	if country == "" {
		country = unknownSentinel
	}

	return city + ", " + country
}
