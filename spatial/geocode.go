package spatial

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/httpclient"
)

// DefaultNominatimURL is the public Nominatim search endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org/search"

// Location is a geocoded address in WGS84.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Point returns the location as an orb point (lon, lat).
func (l Location) Point() orb.Point {
	return orb.Point{l.Lon, l.Lat}
}

// ErrNoBoundary is returned by Geocode when the geocoder has no boundary
// to check results against.
var ErrNoBoundary = errors.New("geocoder has no boundary")

// Geocoder resolves addresses with Nominatim, caching results (misses
// included) in a JSON file.
type Geocoder struct {
	HTTP      *httpclient.Client
	URL       string
	UserAgent string
	CachePath string

	// Boundary, in WGS84, rejects results outside it.
	Boundary orb.MultiPolygon

	limiter *rate.Limiter

	mu     sync.Mutex
	cache  map[string]*Location
	loaded bool
}

// NewGeocoder builds a Geocoder accepting results inside boundary (WGS84)
// and allowing one upstream call per second. See Layer.Boundary.
func NewGeocoder(hc *httpclient.Client, cachePath string, boundary orb.MultiPolygon) *Geocoder {
	return &Geocoder{
		HTTP:      hc,
		URL:       DefaultNominatimURL,
		UserAgent: "opendatabs-etl",
		CachePath: cachePath,
		Boundary:  boundary,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Geocode returns the location of address. ok is false when the address
// has no match inside the boundary; such misses are cached too.
func (g *Geocoder) Geocode(ctx context.Context, address string) (loc Location, ok bool, err error) {
	if len(g.Boundary) == 0 {
		return Location{}, false, ErrNoBoundary
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.load(); err != nil {
		return Location{}, false, err
	}

	if cached, hit := g.cache[address]; hit {
		if cached == nil {
			return Location{}, false, nil
		}
		return *cached, true, nil
	}

	found, err := g.lookup(ctx, address)
	if err != nil {
		return Location{}, false, err
	}
	if found != nil && !planar.MultiPolygonContains(g.Boundary, found.Point()) {
		log.Ctx(ctx).Warn().Str("address", address).Float64("lat", found.Lat).Float64("lon", found.Lon).
			Msg("geocoded address is outside the boundary")
		found = nil
	}

	g.cache[address] = found
	if err := g.save(); err != nil {
		return Location{}, false, err
	}

	if found == nil {
		return Location{}, false, nil
	}
	return *found, true, nil
}

func (g *Geocoder) lookup(ctx context.Context, address string) (*Location, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, xerrors.Errorf("failed to wait for rate limiter: %w", err)
		}
	}

	resp, err := g.HTTP.Get(ctx, g.URL,
		httpclient.Header("User-Agent", g.UserAgent),
		httpclient.Query("q", address),
		httpclient.Query("format", "json"),
		httpclient.Query("limit", "1"),
		httpclient.Query("countrycodes", "ch"),
	)
	if err != nil {
		return nil, xerrors.Errorf("failed to geocode %q: %w", address, err)
	}
	if err := httpclient.RaiseForStatus(resp); err != nil {
		return nil, xerrors.Errorf("failed to geocode %q: %w", address, err)
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.Unmarshal(resp.Body(), &results); err != nil {
		return nil, xerrors.Errorf("failed to decode geocoding result: %w", err)
	}
	if len(results) == 0 {
		log.Ctx(ctx).Info().Str("address", address).Msg("address not found")
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse longitude %q: %w", results[0].Lon, err)
	}
	return &Location{Lat: lat, Lon: lon}, nil
}

func (g *Geocoder) load() error {
	if g.loaded {
		return nil
	}
	g.cache = map[string]*Location{}

	b, err := os.ReadFile(g.CachePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return xerrors.Errorf("failed to read geocode cache: %w", err)
	default:
		if err := json.Unmarshal(b, &g.cache); err != nil {
			return xerrors.Errorf("failed to decode geocode cache %s: %w", g.CachePath, err)
		}
	}

	g.loaded = true
	return nil
}

func (g *Geocoder) save() error {
	b, err := json.MarshalIndent(g.cache, "", "  ")
	if err != nil {
		return xerrors.Errorf("failed to encode geocode cache: %w", err)
	}
	return writeFileAtomic(g.CachePath, b)
}

func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return xerrors.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return xerrors.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return xerrors.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return xerrors.Errorf("failed to rename %s: %w", tmp.Name(), err)
	}
	return nil
}
