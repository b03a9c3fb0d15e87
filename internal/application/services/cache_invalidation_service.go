package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
	"github.com/zatekoja/patientinsights/internal/domain/providers"
	"github.com/zatekoja/patientinsights/internal/infrastructure/observability"
)

// CacheInvalidationService drops cached narratives when the upstream
// reconciler reports that a patient's record changed. Fingerprinted keys
// already make stale entries unreachable; this only frees them early.
type CacheInvalidationService struct {
	cache    *NarrativeCache
	eventBus providers.EventBus
	channel  string
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewCacheInvalidationService creates a new cache invalidation service. An
// empty channel subscribes to providers.EventChannelRecordUpdates.
func NewCacheInvalidationService(cache *NarrativeCache, eventBus providers.EventBus, channel string) *CacheInvalidationService {
	if channel == "" {
		channel = providers.EventChannelRecordUpdates
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CacheInvalidationService{
		cache:    cache,
		eventBus: eventBus,
		channel:  channel,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins listening for record events
func (s *CacheInvalidationService) Start() error {
	eventChan, err := s.eventBus.Subscribe(s.ctx, s.channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to record updates: %w", err)
	}

	s.wg.Add(1)
	go s.processEvents(eventChan)
	observability.GetLogger().Info().Str("channel", s.channel).Msg("cache invalidation service started")
	return nil
}

// Stop stops the service and waits for the event loop to exit
func (s *CacheInvalidationService) Stop() {
	s.cancel()
	s.wg.Wait()
	observability.GetLogger().Info().Msg("cache invalidation service stopped")
}

func (s *CacheInvalidationService) processEvents(eventChan <-chan *entities.RecordEvent) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			s.handleEvent(event)
		}
	}
}

func (s *CacheInvalidationService) handleEvent(event *entities.RecordEvent) {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	logger := observability.GetLogger().With().
		Str("event_id", event.ID).
		Str("patient_id", event.PatientID).
		Str("event_type", string(event.EventType)).
		Logger()

	removed, err := s.cache.InvalidatePatient(ctx, event.PatientID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to invalidate narratives")
		return
	}
	logger.Debug().Int("removed", removed).Msg("invalidated narratives for updated record")
}

// InvalidatePatient removes a patient's narratives locally, then announces
// the invalidation so other replicas sharing the bus drop theirs. A failed
// announcement is logged; the local removal still stands.
func (s *CacheInvalidationService) InvalidatePatient(ctx context.Context, patientID string) (int, error) {
	removed, err := s.cache.InvalidatePatient(ctx, patientID)
	if err != nil || patientID == "" {
		return removed, err
	}

	event := entities.NewRecordEvent(patientID, entities.RecordEventTypeInvalidated, nil)
	if err := s.eventBus.Publish(ctx, s.channel, event); err != nil {
		observability.GetLogger().Warn().Err(err).Str("patient_id", patientID).Msg("failed to announce narrative invalidation")
	}
	return removed, nil
}
