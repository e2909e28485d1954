package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"
)

func TestClean(t *testing.T) {
	cases := map[string]string{
		"my address is 123 main street springfield":      "123 Main Street Springfield",
		"  deliver to   42 elm ave,  apt 3 please ":      "42 Elm Ave, Apt 3",
		"I live at 9 Oak Road thank you":                 "9 Oak Road",
		"the address is 1600 pennsylvania avenue thanks": "1600 Pennsylvania Avenue",
		"456 thanksgiving road boston":                   "456 Thanksgiving Road Boston",
		"deliver to 12 pleasant street toronto please":   "12 Pleasant Street Toronto",
	}
	for in, want := range cases {
		assert.Equal(t, want, Clean(in), in)
	}
}

func TestPlausible(t *testing.T) {
	assert.True(t, Plausible("123 Main Street Springfield"))
	assert.True(t, Plausible("42 Elm Ave"))
	assert.True(t, Plausible("Apartment12Building"))
	assert.False(t, Plausible("Main Street"), "no digits")
	assert.False(t, Plausible("1234567890"), "no letters")
	assert.False(t, Plausible("12 Elm"), "too short")
	assert.False(t, Plausible("12 Elmwood"), "two short words")
}

func TestOffline(t *testing.T) {
	loc, err := Offline{}.Verify(context.Background(), "my address is 123 main street springfield")
	require.NoError(t, err)
	assert.Equal(t, "123 Main Street Springfield", loc.FormattedAddress)

	_, err = Offline{}.Verify(context.Background(), "um somewhere")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGoogle(t *testing.T) {
	status := "OK"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if status != "OK" {
			_, _ = w.Write([]byte(`{"results":[],"status":"ZERO_RESULTS"}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"formatted_address":"123 Main St, Springfield, IL 62701, USA","geometry":{"location":{"lat":39.7817,"lng":-89.6501}}}],"status":"OK"}`))
	}))
	defer srv.Close()

	g, err := NewGoogle("test-key", "us", maps.WithBaseURL(srv.URL))
	require.NoError(t, err)
	loc, err := g.Verify(context.Background(), "123 Main Street Springfield")
	require.NoError(t, err)
	assert.Equal(t, "123 Main St, Springfield, IL 62701, USA", loc.FormattedAddress)
	assert.InDelta(t, 39.7817, loc.Lat, 1e-6)
	assert.InDelta(t, -89.6501, loc.Lon, 1e-6)

	status = "ZERO_RESULTS"
	_, err = g.Verify(context.Background(), "nowhere 0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNew_Offline(t *testing.T) {
	_, ok := New("", "us").(Offline)
	assert.True(t, ok)
}
