// Package filter rejects spam token creations before they reach the
// discovery cache.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mr-tron/base58"
)

// DefaultBadWordPattern matches names and symbols typical of spam mints.
const DefaultBadWordPattern = `(?i)(test|rug|scam|airdrop|free\s*money)`

// DefaultBurstWindow is how long a name/symbol stays "recently seen".
const DefaultBurstWindow = 30 * time.Second

// Config holds spam filter parameters.
type Config struct {
	BadWordPattern string
	BurstWindow    time.Duration
}

// DefaultConfig returns the default filter configuration.
func DefaultConfig() Config {
	return Config{
		BadWordPattern: DefaultBadWordPattern,
		BurstWindow:    DefaultBurstWindow,
	}
}

// accepted is one recently accepted creation, kept for burst detection.
type accepted struct {
	at     time.Time
	name   string
	symbol string
}

// Filter is a stateless-per-call spam check with a rolling accepted list.
// Not safe for concurrent use; the engine calls it from its single loop.
type Filter struct {
	badWords *regexp.Regexp
	window   time.Duration
	recent   []accepted
}

// New creates a Filter. Returns an error if the bad-word pattern is invalid.
func New(cfg Config) (*Filter, error) {
	pattern := cfg.BadWordPattern
	if pattern == "" {
		pattern = DefaultBadWordPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile bad-word pattern: %w", err)
	}

	window := cfg.BurstWindow
	if window <= 0 {
		window = DefaultBurstWindow
	}

	return &Filter{badWords: re, window: window}, nil
}

// ShouldReject reports whether the creation should be dropped, with a reason.
// Accepted creations are remembered for burst detection.
func (f *Filter) ShouldReject(name, symbol, mint string, now time.Time) (bool, string) {
	f.prune(now)

	if !validMint(mint) {
		return true, "invalid_mint"
	}

	if f.badWords.MatchString(name) || f.badWords.MatchString(symbol) {
		return true, "bad_word"
	}

	lowName := strings.ToLower(strings.TrimSpace(name))
	lowSymbol := strings.ToLower(strings.TrimSpace(symbol))
	for _, a := range f.recent {
		if now.Sub(a.at) > f.window {
			continue
		}
		if (lowName != "" && a.name == lowName) || (lowSymbol != "" && a.symbol == lowSymbol) {
			return true, "burst_duplicate"
		}
	}

	f.recent = append(f.recent, accepted{at: now, name: lowName, symbol: lowSymbol})
	return false, ""
}

// prune drops entries older than twice the burst window.
func (f *Filter) prune(now time.Time) {
	cutoff := now.Add(-2 * f.window)
	keep := f.recent[:0]
	for _, a := range f.recent {
		if a.at.After(cutoff) {
			keep = append(keep, a)
		}
	}
	f.recent = keep
}

// validMint checks that the mint decodes as a 32-byte base58 value.
func validMint(mint string) bool {
	raw, err := base58.Decode(mint)
	if err != nil {
		return false
	}
	return len(raw) == 32
}
