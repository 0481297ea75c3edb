package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/driftline/chatsync/internal/gateway"
	"github.com/driftline/chatsync/internal/model"
	"github.com/driftline/chatsync/pkg/logger"
	"github.com/driftline/chatsync/pkg/metrics"
)

// DefaultErrorTTL is how long a reaction error flag stays visible
// before it clears itself.
const DefaultErrorTTL = 3 * time.Second

// PendingKey addresses one in-flight reaction mutation. At most one
// pending op may exist per key at any time.
type PendingKey struct {
	MessageID string
	Type      model.ReactionType
}

// PendingReactionOp records an outstanding remote confirmation.
type PendingReactionOp struct {
	Type          model.ReactionType
	PreviousValue int
	StartedAt     time.Time
}

// ReactionSynchronizer owns per-message reaction counters and runs the
// optimistic-update protocol: apply locally, confirm or roll back, and
// expire error flags on a timer.
type ReactionSynchronizer struct {
	gateway gateway.Gateway
	logger  *logger.Logger
	snap    SnapshotWriter
	notify  *notifier
	errTTL  time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	counts   map[string]model.ReactionCounts
	pending  map[PendingKey]PendingReactionOp
	errs     map[string]string
	timers   map[string]*time.Timer
	timerGen map[string]uint64
}

// NewReactionSynchronizer creates a synchronizer with the given error
// TTL; ttl <= 0 selects DefaultErrorTTL.
func NewReactionSynchronizer(gw gateway.Gateway, log *logger.Logger, snap SnapshotWriter, n *notifier, ttl time.Duration) *ReactionSynchronizer {
	if ttl <= 0 {
		ttl = DefaultErrorTTL
	}
	return &ReactionSynchronizer{
		gateway:  gw,
		logger:   log.Component("reactions"),
		snap:     snap,
		notify:   n,
		errTTL:   ttl,
		now:      time.Now,
		counts:   make(map[string]model.ReactionCounts),
		pending:  make(map[PendingKey]PendingReactionOp),
		errs:     make(map[string]string),
		timers:   make(map[string]*time.Timer),
		timerGen: make(map[string]uint64),
	}
}

// Seed installs baseline counters for a message unless counters are
// already tracked for it. First seen wins; a stale baseline never
// overwrites a local counter.
func (s *ReactionSynchronizer) Seed(messageID string, counts model.ReactionCounts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, tracked := s.counts[messageID]; tracked {
		return
	}
	s.counts[messageID] = counts
}

// Toggle runs the optimistic +1 protocol for one reaction counter.
// A second toggle for the same (message, type) pair while the first is
// unresolved is rejected silently: no state change, a warning only.
func (s *ReactionSynchronizer) Toggle(ctx context.Context, messageID string, reactionType model.ReactionType) {
	key := PendingKey{MessageID: messageID, Type: reactionType}

	s.mu.Lock()
	if _, busy := s.pending[key]; busy {
		s.mu.Unlock()
		s.logger.Warn("reaction already in flight",
			zap.String("message_id", messageID),
			zap.String("type", string(reactionType)),
		)
		metrics.ReactionTogglesTotal.WithLabelValues(metrics.ToggleRejectedBusy).Inc()
		return
	}

	// Increment from the locally known value, confirmed or optimistic,
	// so rapid taps compound once their pending ops complete.
	current := s.counts[messageID]
	previous := current.Get(reactionType)
	newValue := previous + 1
	s.counts[messageID] = current.With(reactionType, newValue)
	s.pending[key] = PendingReactionOp{
		Type:          reactionType,
		PreviousValue: previous,
		StartedAt:     s.now(),
	}
	s.mu.Unlock()

	metrics.PendingReactions.Inc()
	s.notify.fire()

	confirmed, err := s.gateway.UpdateReaction(ctx, messageID, reactionType, newValue)
	metrics.RecordGatewayCall("update_reaction", err)
	metrics.PendingReactions.Dec()

	s.mu.Lock()
	delete(s.pending, key)

	if err != nil {
		// Roll back the single changed field; other types on this
		// message keep whatever value they have now.
		s.counts[messageID] = s.counts[messageID].With(reactionType, previous)
		s.errs[messageID] = "Failed to update reaction"
		s.scheduleClearLocked(messageID)
		persisted := s.counts[messageID]
		s.mu.Unlock()

		s.logger.Error("reaction update failed",
			zap.String("message_id", messageID),
			zap.String("type", string(reactionType)),
			zap.Error(err),
		)
		metrics.ReactionTogglesTotal.WithLabelValues(metrics.ToggleRolledBack).Inc()
		s.persist(messageID, persisted)
		s.notify.fire()
		return
	}

	// The gateway is authoritative on confirm.
	s.counts[messageID] = confirmed
	s.mu.Unlock()

	metrics.ReactionTogglesTotal.WithLabelValues(metrics.ToggleConfirmed).Inc()
	s.persist(messageID, confirmed)
	s.notify.fire()
}

// scheduleClearLocked arms the error-clearance timer for messageID,
// replacing any prior one. A replaced timer may already have fired and
// be blocked on s.mu, so Stop alone is not enough; each arming bumps a
// generation the callback must still match to clear anything.
// Callers hold s.mu.
func (s *ReactionSynchronizer) scheduleClearLocked(messageID string) {
	if t, ok := s.timers[messageID]; ok {
		t.Stop()
	}
	s.timerGen[messageID]++
	gen := s.timerGen[messageID]
	s.timers[messageID] = time.AfterFunc(s.errTTL, func() {
		s.expireError(messageID, gen)
	})
}

// expireError is the clearance-timer callback. A stale callback that
// lost the Stop race carries an old generation and must not touch the
// newer error.
func (s *ReactionSynchronizer) expireError(messageID string, gen uint64) {
	s.mu.Lock()
	if s.timerGen[messageID] != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, messageID)
	_, had := s.errs[messageID]
	delete(s.errs, messageID)
	s.mu.Unlock()

	if had {
		s.notify.fire()
	}
}

// ClearError removes the error flag for a message and cancels its
// clearance timer.
func (s *ReactionSynchronizer) ClearError(messageID string) {
	s.mu.Lock()
	if t, ok := s.timers[messageID]; ok {
		t.Stop()
		delete(s.timers, messageID)
	}
	s.timerGen[messageID]++
	_, had := s.errs[messageID]
	delete(s.errs, messageID)
	s.mu.Unlock()

	if had {
		s.notify.fire()
	}
}

// Counts returns the current counters for a message; all-zero if the
// message was never seen.
func (s *ReactionSynchronizer) Counts(messageID string) model.ReactionCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[messageID]
}

// Err returns the transient error text for a message, if any.
func (s *ReactionSynchronizer) Err(messageID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.errs[messageID]
	return msg, ok
}

// Pending reports whether a mutation for the key is in flight.
func (s *ReactionSynchronizer) Pending(messageID string, reactionType model.ReactionType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pending[PendingKey{MessageID: messageID, Type: reactionType}]
	return ok
}

// snapshotAll returns deep copies of the counter, pending and error
// tables for the engine's state view.
func (s *ReactionSynchronizer) snapshotAll() (map[string]model.ReactionCounts, map[PendingKey]PendingReactionOp, map[string]string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]model.ReactionCounts, len(s.counts))
	for k, v := range s.counts {
		counts[k] = v
	}
	pending := make(map[PendingKey]PendingReactionOp, len(s.pending))
	for k, v := range s.pending {
		pending[k] = v
	}
	errs := make(map[string]string, len(s.errs))
	for k, v := range s.errs {
		errs[k] = v
	}
	return counts, pending, errs
}

// restore installs persisted counters at bootstrap, before any seeding.
func (s *ReactionSynchronizer) restore(counts map[string]model.ReactionCounts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range counts {
		s.counts[k] = v
	}
}

func (s *ReactionSynchronizer) persist(messageID string, counts model.ReactionCounts) {
	if s.snap == nil {
		return
	}
	if err := s.snap.PutReactions(messageID, counts); err != nil {
		s.logger.Warn("failed to persist reactions",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}

// Close stops all outstanding error-clearance timers.
func (s *ReactionSynchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
