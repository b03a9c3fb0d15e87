package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
	"github.com/zatekoja/patientinsights/internal/domain/providers"
)

const narrativeKeyPrefix = "narrative:"

// NarrativeKey builds the cache key for a narrative. The fingerprint covers
// every input, so a changed record produces a new key.
func NarrativeKey(patientID string, kind entities.NarrativeKind, fingerprint string) string {
	return narrativeKeyPrefix + keySegment(patientID) + ":" + string(kind) + ":" + fingerprint
}

// CacheStats is a point-in-time view of the narrative cache counters.
type CacheStats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Stores        int64   `json:"stores"`
	Invalidations int64   `json:"invalidations"`
	ModelCalls    int64   `json:"model_calls"`
	HitRate       float64 `json:"hit_rate"`
	Entries       *int    `json:"entries,omitempty"`
}

// sizer is implemented by stores that can count their entries cheaply.
type sizer interface {
	Len() int
}

// NarrativeCache stores guarded narratives by content fingerprint. Entries
// never expire; they are replaced when inputs change and removed only by
// explicit invalidation.
type NarrativeCache struct {
	store providers.CacheProvider

	hits          atomic.Int64
	misses        atomic.Int64
	stores        atomic.Int64
	invalidations atomic.Int64
	modelCalls    atomic.Int64
}

// NewNarrativeCache wraps a cache provider.
func NewNarrativeCache(store providers.CacheProvider) *NarrativeCache {
	return &NarrativeCache{store: store}
}

// Get returns the narrative stored under key, or providers.ErrCacheMiss.
// Undecodable entries are treated as misses.
func (c *NarrativeCache) Get(ctx context.Context, key string) (*entities.CachedNarrative, error) {
	cached, err := c.peek(ctx, key)
	if err != nil {
		c.misses.Add(1)
		return nil, err
	}
	c.hits.Add(1)
	return cached, nil
}

// peek reads an entry without touching the hit and miss counters.
func (c *NarrativeCache) peek(ctx context.Context, key string) (*entities.CachedNarrative, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, providers.ErrCacheMiss) {
			return nil, providers.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read narrative cache: %w", err)
	}

	var cached entities.CachedNarrative
	if err := json.Unmarshal(data, &cached); err != nil || cached.Output.IsZero() {
		return nil, providers.ErrCacheMiss
	}
	return &cached, nil
}

// Store writes a narrative with no expiry.
func (c *NarrativeCache) Store(ctx context.Context, n *entities.CachedNarrative) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode narrative: %w", err)
	}
	if err := c.store.Set(ctx, n.Key, data, 0); err != nil {
		return fmt.Errorf("failed to write narrative cache: %w", err)
	}
	c.stores.Add(1)
	return nil
}

// Invalidate removes one entry.
func (c *NarrativeCache) Invalidate(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to invalidate narrative %s: %w", key, err)
	}
	c.invalidations.Add(1)
	return nil
}

// InvalidatePatient removes every narrative cached for a patient.
func (c *NarrativeCache) InvalidatePatient(ctx context.Context, patientID string) (int, error) {
	if patientID == "" {
		return 0, nil
	}
	n, err := c.store.DeletePattern(ctx, narrativeKeyPrefix+keySegment(patientID)+":*")
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate narratives for patient: %w", err)
	}
	c.invalidations.Add(int64(n))
	return n, nil
}

// Purge removes every cached narrative.
func (c *NarrativeCache) Purge(ctx context.Context) (int, error) {
	n, err := c.store.DeletePattern(ctx, narrativeKeyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to purge narrative cache: %w", err)
	}
	c.invalidations.Add(int64(n))
	return n, nil
}

// Stats returns the cache counters. Entries is set only for stores that
// can count themselves.
func (c *NarrativeCache) Stats() CacheStats {
	s := CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Stores:        c.stores.Load(),
		Invalidations: c.invalidations.Load(),
		ModelCalls:    c.modelCalls.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	if store, ok := c.store.(sizer); ok {
		n := store.Len()
		s.Entries = &n
	}
	return s
}

func (c *NarrativeCache) recordModelCall() {
	c.modelCalls.Add(1)
}

// keySegment escapes a patient ID so it contains neither the key separator
// nor glob metacharacters.
func keySegment(s string) string {
	return url.QueryEscape(s)
}
