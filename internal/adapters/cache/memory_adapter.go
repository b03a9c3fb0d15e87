package cache

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/zatekoja/patientinsights/internal/domain/providers"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryAdapter implements the CacheProvider interface in process memory.
// Entries live for the process lifetime unless given an expiration.
type MemoryAdapter struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
	now  func() time.Time
}

// NewMemoryAdapter creates an empty in-memory cache
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		data: make(map[string]memoryEntry),
		now:  time.Now,
	}
}

// Get retrieves a value from cache
func (a *MemoryAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	a.mu.RLock()
	entry, ok := a.data[key]
	a.mu.RUnlock()
	if !ok || a.expired(entry) {
		return nil, providers.ErrCacheMiss
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set stores a copy of value
func (a *MemoryAdapter) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if expirationSeconds > 0 {
		entry.expiresAt = a.now().Add(time.Duration(expirationSeconds) * time.Second)
	}
	a.mu.Lock()
	a.data[key] = entry
	a.mu.Unlock()
	return nil
}

// Delete removes a value from cache
func (a *MemoryAdapter) Delete(ctx context.Context, key string) error {
	a.mu.Lock()
	delete(a.data, key)
	a.mu.Unlock()
	return nil
}

// Exists checks if a key exists in cache
func (a *MemoryAdapter) Exists(ctx context.Context, key string) (bool, error) {
	a.mu.RLock()
	entry, ok := a.data[key]
	a.mu.RUnlock()
	return ok && !a.expired(entry), nil
}

// DeletePattern removes every key matching a Redis-style glob pattern.
func (a *MemoryAdapter) DeletePattern(ctx context.Context, pattern string) (int, error) {
	re, err := globToRegexp(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	deleted := 0
	for key := range a.data {
		if re.MatchString(key) {
			delete(a.data, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of live entries.
func (a *MemoryAdapter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := 0
	for _, entry := range a.data {
		if !a.expired(entry) {
			n++
		}
	}
	return n
}

func (a *MemoryAdapter) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && !a.now().Before(entry.expiresAt)
}

// globToRegexp translates the glob dialect Redis uses for SCAN MATCH:
// * and ? wildcards, [...] classes and backslash escapes.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?s)^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '\\':
			if i+1 < len(runes) {
				i++
				b.WriteString(regexp.QuoteMeta(string(runes[i])))
			} else {
				b.WriteString(`\\`)
			}
		case '[':
			j := i + 1
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			if j == len(runes) {
				b.WriteString(`\[`)
				continue
			}
			b.WriteByte('[')
			for k, c := range runes[i+1 : j] {
				if k == 0 && c == '^' {
					b.WriteByte('^')
					continue
				}
				b.WriteString(regexp.QuoteMeta(string(c)))
			}
			b.WriteByte(']')
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
