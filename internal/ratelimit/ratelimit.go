// Package ratelimit implements C3: an in-process registry of
// (accountId, family) -> reset time, plus parsers for upstream 429 bodies
// and Retry-After headers.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultDelay is used when an upstream 429 carries no parseable delay.
const DefaultDelay = time.Hour

// MaxDelay caps the header-derived delays returned by ParseRetryAfterMs.
const MaxDelay = 24 * time.Hour

type entry struct {
	resetTime time.Time
	model     string
	message   string
}

// Registry is the concurrency-safe accountId -> family -> entry map
// described in §4.4. The zero value is not usable; use NewRegistry.
type Registry struct {
	mu       sync.RWMutex
	byFamily map[string]map[string]entry
}

// NewRegistry constructs an empty rate-limit registry.
func NewRegistry() *Registry {
	return &Registry{byFamily: make(map[string]map[string]entry)}
}

// MarkRateLimited records that accountId is rate-limited for family until
// now+retryAfterMs.
func (r *Registry) MarkRateLimited(accountID, family string, retryAfterMs int64, model, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	families, ok := r.byFamily[accountID]
	if !ok {
		families = make(map[string]entry)
		r.byFamily[accountID] = families
	}
	families[family] = entry{
		resetTime: time.Now().Add(time.Duration(retryAfterMs) * time.Millisecond),
		model:     model,
		message:   message,
	}
}

// IsRateLimited reports whether accountId is currently rate-limited for
// family, lazily evicting the entry if its reset time has passed.
func (r *Registry) IsRateLimited(accountID, family string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	families, ok := r.byFamily[accountID]
	if !ok {
		return false
	}
	e, ok := families[family]
	if !ok {
		return false
	}
	if time.Now().After(e.resetTime) {
		delete(families, family)
		return false
	}
	return true
}

// GetMinWaitTime returns 0 if any of accountIDs is not limited for family;
// otherwise it returns the smallest remaining wait across all of them.
func (r *Registry) GetMinWaitTime(accountIDs []string, family string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var min time.Duration = -1
	for _, id := range accountIDs {
		families, ok := r.byFamily[id]
		if !ok {
			return 0
		}
		e, ok := families[family]
		if !ok {
			return 0
		}
		if now.After(e.resetTime) {
			delete(families, family)
			return 0
		}
		remaining := e.resetTime.Sub(now)
		if min < 0 || remaining < min {
			min = remaining
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

// ModelFamily implements the §4.6 keying rule: claude* -> "claude",
// *flash* -> "gemini-flash", anything else containing "gemini" ->
// "gemini-pro", otherwise the raw model name.
func ModelFamily(model string) string {
	lower := toLower(model)
	switch {
	case hasPrefix(lower, "claude"):
		return "claude"
	case contains(lower, "flash"):
		return "gemini-flash"
	case contains(lower, "gemini"):
		return "gemini-pro"
	default:
		return model
	}
}

func toLower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func contains(s, substr string) bool {
	if substr == "" {
		return true
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// ParseRateLimitError extracts a retry delay in milliseconds from an
// upstream 429 JSON body shaped like Google's error.details[] ErrorInfo /
// RetryInfo entries. Falls back to DefaultDelay when nothing parses; a
// parsed delay is returned as is, without the MaxDelay cap.
func ParseRateLimitError(body []byte) (retryAfterMs int64, message string) {
	root := gjson.ParseBytes(body)
	message = root.Get("error.message").String()

	details := root.Get("error.details")
	if details.IsArray() {
		var found time.Duration
		details.ForEach(func(_, detail gjson.Result) bool {
			typ := detail.Get("@type").String()
			switch {
			case contains(typ, "ErrorInfo"):
				if s := detail.Get("metadata.quotaResetDelay").String(); s != "" {
					if d, ok := parseGoDurationLike(s); ok {
						found = d
						return false
					}
				}
			case contains(typ, "RetryInfo"):
				if s := detail.Get("retryDelay").String(); s != "" {
					if d, ok := parseGoDurationLike(s); ok {
						found = d
						return false
					}
				}
			}
			return true
		})
		if found > 0 {
			return found.Milliseconds(), message
		}
	}
	return DefaultDelay.Milliseconds(), message
}

// ParseRetryAfterMs reads Retry-After-Ms first, then the standard
// Retry-After (seconds) header, capping at MaxDelay. Returns ok=false when
// neither header is present or parseable.
func ParseRetryAfterMs(header http.Header) (ms int64, ok bool) {
	if v := header.Get("Retry-After-Ms"); v != "" {
		if n, parsed := parseInt(v); parsed {
			return capMs(n), true
		}
	}
	if v := header.Get("Retry-After"); v != "" {
		if n, parsed := parseInt(v); parsed {
			return capMs(n * 1000), true
		}
	}
	return 0, false
}

func capMs(ms int64) int64 {
	max := MaxDelay.Milliseconds()
	if ms > max {
		return max
	}
	if ms < 0 {
		return 0
	}
	return ms
}

func parseInt(s string) (int64, bool) {
	var n int64
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}

// parseGoDurationLike parses strings like "128h12m18.724039275s" (any
// subset of h/m/s components, decimal seconds allowed) with
// time.ParseDuration, reporting ok=false for anything that does not parse.
func parseGoDurationLike(s string) (time.Duration, bool) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false
	}
	return d, true
}
