package geocode

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// ErrNotFound means the address could not be resolved to a deliverable place.
var ErrNotFound = errors.New("address not found")

// Location is a resolved address.
type Location struct {
	FormattedAddress string
	Lat              float64
	Lon              float64
}

// Verifier resolves free-text addresses.
type Verifier interface {
	Verify(ctx context.Context, address string) (Location, error)
}

// filler phrases callers wrap around an address
var fillers = []string{
	"my address is", "the address is", "i live at", "deliver to",
	"thank you", "thanks", "please",
}

var (
	spaces = regexp.MustCompile(`\s+`)
	// fillerRe matches fillers as whole words only, so "thanksgiving road" survives.
	fillerRe = regexp.MustCompile(`\b(?:` + strings.Join(fillers, "|") + `)\b`)
)

// Clean strips filler phrases, collapses whitespace and title-cases words.
func Clean(text string) string {
	s := fillerRe.ReplaceAllString(strings.ToLower(text), " ")
	s = strings.Trim(spaces.ReplaceAllString(s, " "), " ,.")
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// Plausible is the offline acceptance rule: at least 10 characters, both a
// digit and a letter, and three or more words or more than 15 characters.
func Plausible(addr string) bool {
	if len(addr) < 10 {
		return false
	}
	var digit, letter bool
	for _, r := range addr {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLetter(r):
			letter = true
		}
	}
	if !digit || !letter {
		return false
	}
	return len(strings.Fields(addr)) >= 3 || len(addr) > 15
}

// Offline verifies addresses with the plausibility rule only.
type Offline struct{}

func (Offline) Verify(_ context.Context, address string) (Location, error) {
	c := Clean(address)
	if !Plausible(c) {
		return Location{}, ErrNotFound
	}
	return Location{FormattedAddress: c}, nil
}
