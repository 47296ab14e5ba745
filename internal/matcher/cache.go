// Package matcher decides whether live system objects satisfy uninstall
// criteria, and whether they are interesting enough to dump.
package matcher

import (
	"regexp"
	"sync"

	"github.com/tabletdrivercleanup/tdc/internal/logging"
)

var log = logging.L("matcher")

type entry struct {
	re  *regexp.Regexp
	err error
}

// Cache holds compiled case-insensitive patterns keyed by their source
// text. Entries are inserted once and never replaced or evicted.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

// Compile returns the compiled form of pattern, compiling and caching it on
// first use. An invalid pattern is cached together with its error.
func (c *Cache) Compile(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	e, ok := c.entries[pattern]
	c.mu.Unlock()
	if ok {
		return e.re, e.err
	}

	re, err := regexp.Compile("(?i)" + pattern)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[pattern]; ok {
		return existing.re, existing.err
	}
	c.entries[pattern] = entry{re: re, err: err}
	if err != nil {
		log.Warn("invalid pattern never matches", "pattern", pattern, "error", err)
	}
	return re, err
}

// Len returns the number of distinct patterns seen.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MatchString reports whether pattern occurs anywhere in s, ignoring case.
func (c *Cache) MatchString(s, pattern string) bool {
	re, err := c.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// MatchField applies an optional pattern to an optional value. An absent
// pattern matches anything; a present pattern never matches an absent value.
func (c *Cache) MatchField(actual, pattern *string) bool {
	if pattern == nil {
		return true
	}
	if actual == nil {
		return false
	}
	return c.MatchString(*actual, *pattern)
}

// MatchAny applies an optional pattern to a multi-valued attribute: it holds
// when the pattern is absent or any element matches.
func (c *Cache) MatchAny(actuals []string, pattern *string) bool {
	if pattern == nil {
		return true
	}
	for _, actual := range actuals {
		if c.MatchString(actual, *pattern) {
			return true
		}
	}
	return false
}

// Present returns the non-nil values of ps in order.
func Present(ps ...*string) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}
