package agent

import (
	"strconv"
	"strings"

	"github.com/chadiek/voice-order/internal/session"
)

// rule routes to a target agent when the utterance contains any keyword.
type rule struct {
	to       session.AgentName
	keywords []string
}

// firstMatch returns the target of the first rule with a keyword contained in
// the utterance. Rules are checked in table order.
func firstMatch(utterance string, rules []rule) session.AgentName {
	u := strings.ToLower(utterance)
	if u == "" {
		return ""
	}
	for _, r := range rules {
		for _, k := range r.keywords {
			if strings.Contains(u, k) {
				return r.to
			}
		}
	}
	return ""
}

var (
	confirmPhrases = []string{
		"confirm", "yes", "yeah", "yep", "ok", "okay", "proceed", "go ahead",
		"place order", "place the order", "sure", "absolutely", "correct",
		"do it", "sounds good",
	}
	cancelPhrases = []string{
		"cancel", "never mind", "nevermind", "dont place", "do not place", "forget it",
	}
	declinePhrases = []string{
		"no", "nope", "not yet", "wait", "hold on", "stop",
	}
	checkoutPhrases = []string{
		"thats all", "that is all", "checkout", "check out", "thats it", "that is it",
		"done", "nothing else",
	}
	goodbyePhrases = []string{
		"goodbye", "bye", "thats all", "that is all", "no thanks", "no thank you",
		"nothing else", "hang up",
	}
	statusPhrases = []string{
		"status", "update", "where", "how long", "when", "track", "eta", "progress",
	}
	fillerWords = map[string]bool{"uh": true, "um": true, "ah": true, "er": true, "hmm": true}
)

// words lower-cases text, drops punctuation and filler sounds.
func words(text string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case r == '\'':
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	var out []string
	for _, w := range strings.Fields(b.String()) {
		if !fillerWords[w] {
			out = append(out, w)
		}
	}
	return out
}

// hasPhrase matches whole words, so "no" does not match "know".
func hasPhrase(text string, phrases []string) bool {
	t := " " + strings.Join(words(text), " ") + " "
	for _, p := range phrases {
		if strings.Contains(t, " "+p+" ") {
			return true
		}
	}
	return false
}

var negations = map[string]bool{"dont": true, "not": true, "never": true}

// hasAffirmedPhrase is hasPhrase ignoring matches right after a negation,
// so "don't cancel" does not count as "cancel".
func hasAffirmedPhrase(text string, phrases []string) bool {
	ws := words(text)
	for _, p := range phrases {
		pw := strings.Fields(p)
		for i := 0; i+len(pw) <= len(ws); i++ {
			if strings.Join(ws[i:i+len(pw)], " ") != p {
				continue
			}
			if i == 0 || !negations[ws[i-1]] {
				return true
			}
		}
	}
	return false
}

// IsConfirmation reports whether the caller agreed to go ahead. An explicit
// cancel in the same breath wins; a bare "no" does not.
func IsConfirmation(text string) bool {
	return hasAffirmedPhrase(text, confirmPhrases) && !IsCancel(text)
}

// IsCancel reports whether the caller explicitly asked to cancel.
func IsCancel(text string) bool { return hasAffirmedPhrase(text, cancelPhrases) }

// IsDecline reports a plain refusal such as "no" or "not yet".
func IsDecline(text string) bool { return hasPhrase(text, declinePhrases) }

// IsCheckout reports whether the caller finished choosing items.
func IsCheckout(text string) bool { return hasPhrase(text, checkoutPhrases) }

// IsGoodbye reports whether the caller is ending the conversation.
func IsGoodbye(text string) bool { return hasPhrase(text, goodbyePhrases) }

func isStatusRequest(text string) bool { return hasPhrase(text, statusPhrases) }

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"a": 1, "an": 1, "single": 1, "couple": 2, "pair": 2,
}

// parseQuantity returns the first spoken or written count, defaulting to one.
func parseQuantity(text string) int {
	for _, w := range words(text) {
		if n, err := strconv.Atoi(w); err == nil && n > 0 && n <= 20 {
			return n
		}
		if n, ok := numberWords[w]; ok {
			return n
		}
	}
	return 1
}

// parseRating finds a 1-5 rating, or 0.
func parseRating(text string) int {
	for _, w := range words(text) {
		n, err := strconv.Atoi(w)
		if err != nil {
			n = numberWords[w]
			if w == "a" || w == "an" {
				n = 0
			}
		}
		if n >= 1 && n <= 5 {
			return n
		}
	}
	return 0
}

// phoneDigits returns the digits of text when it holds a phone number.
func phoneDigits(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() < 10 {
		return ""
	}
	return b.String()
}

func hasDigit(text string) bool {
	return strings.ContainsAny(text, "0123456789")
}
