package geocode

import (
	"context"
	"fmt"
	"log"
	"strings"

	"googlemaps.github.io/maps"
)

// Google resolves addresses with the Google Maps Geocoding API.
type Google struct {
	client *maps.Client
	region string
}

// NewGoogle builds a geocoder biased to region (a ccTLD such as "us").
func NewGoogle(apiKey, region string, opts ...maps.ClientOption) (*Google, error) {
	c, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return &Google{client: c, region: region}, nil
}

func (g *Google) Verify(ctx context.Context, address string) (Location, error) {
	res, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address, Region: g.region})
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			return Location{}, ErrNotFound
		}
		return Location{}, fmt.Errorf("geocode: %w", err)
	}
	if len(res) == 0 {
		return Location{}, ErrNotFound
	}
	r := res[0]
	return Location{
		FormattedAddress: r.FormattedAddress,
		Lat:              r.Geometry.Location.Lat,
		Lon:              r.Geometry.Location.Lng,
	}, nil
}

// New returns a Google geocoder, or the offline verifier when no key is set.
func New(apiKey, region string) Verifier {
	if apiKey == "" {
		log.Println("Warning: GOOGLE_MAPS_API_KEY not set - addresses are checked for plausibility only")
		return Offline{}
	}
	g, err := NewGoogle(apiKey, region)
	if err != nil {
		log.Printf("Warning: geocoder unavailable (%v) - addresses are checked for plausibility only", err)
		return Offline{}
	}
	return g
}
