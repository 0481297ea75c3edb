package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/driftline/chatsync/internal/gateway"
	"github.com/driftline/chatsync/internal/model"
	"github.com/driftline/chatsync/pkg/logger"
)

// notifier fans a change signal out to registered listeners. Listeners
// re-read Engine.State; no payload is carried.
type notifier struct {
	mu  sync.RWMutex
	fns []func()
}

func (n *notifier) add(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fns = append(n.fns, fn)
}

func (n *notifier) fire() {
	n.mu.RLock()
	fns := n.fns
	n.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// SnapshotSource is the read-once side of the durable snapshot store,
// consumed at bootstrap.
type SnapshotSource interface {
	SnapshotWriter
	Load() (authored []model.Message, reactions map[string]model.ReactionCounts, err error)
}

// Config carries engine construction parameters.
type Config struct {
	// Profile is the local user identity stamped on sends.
	Profile Profile
	// ReactionErrorTTL overrides the reaction error auto-expiry delay;
	// zero selects the 3 second default.
	ReactionErrorTTL time.Duration
}

// Engine composes the registry, timeline and reaction synchronizer
// over one gateway and one snapshot store.
type Engine struct {
	Registry  *ConversationRegistry
	Timeline  *MessageTimeline
	Reactions *ReactionSynchronizer

	logger *logger.Logger
	snap   SnapshotSource
	notify *notifier
}

// New creates an engine. snap may be nil to run without persistence.
func New(gw gateway.Gateway, snap SnapshotSource, log *logger.Logger, cfg Config) *Engine {
	n := &notifier{}

	var writer SnapshotWriter
	if snap != nil {
		writer = snap
	}

	registry := NewConversationRegistry(gw, log, n)
	reactions := NewReactionSynchronizer(gw, log, writer, n, cfg.ReactionErrorTTL)
	timeline := NewMessageTimeline(gw, log, registry, reactions, writer, n, cfg.Profile)
	registry.AttachTimeline(timeline)

	return &Engine{
		Registry:  registry,
		Timeline:  timeline,
		Reactions: reactions,
		logger:    log.Component("engine"),
		snap:      snap,
		notify:    n,
	}
}

// OnChange registers a listener invoked after every committed state
// mutation.
func (e *Engine) OnChange(fn func()) {
	e.notify.add(fn)
}

// Bootstrap restores the persisted snapshot (read once) and performs
// the one-time conversation fetch. Snapshot failures degrade to an
// empty local history, they never abort startup.
func (e *Engine) Bootstrap(ctx context.Context) {
	if e.snap != nil {
		authored, reactions, err := e.snap.Load()
		if err != nil {
			e.logger.Warn("failed to restore snapshot", zap.Error(err))
		} else {
			e.Timeline.restore(authored)
			e.Reactions.restore(reactions)
			e.logger.Info("snapshot restored",
				zap.Int("authored", len(authored)),
				zap.Int("reactions", len(reactions)),
			)
		}
	}

	e.Registry.Initialize(ctx)
}

// Close releases engine resources (error-clearance timers).
func (e *Engine) Close() {
	e.Reactions.Close()
}

// StateView is a deep-copied snapshot of the whole observable state
// surface. It is safe to retain; nothing in it aliases engine state.
type StateView struct {
	Conversations        []model.Conversation
	SelectedConversation int64
	ConversationsLoading bool

	Messages  []model.Message
	Phase     LoadPhase
	Sending   bool
	SendError string

	Reactions      map[string]model.ReactionCounts
	Pending        map[PendingKey]PendingReactionOp
	ReactionErrors map[string]string
}

// State assembles the current observable state.
func (e *Engine) State() StateView {
	counts, pending, errs := e.Reactions.snapshotAll()
	return StateView{
		Conversations:        e.Registry.Conversations(),
		SelectedConversation: e.Registry.Selected(),
		ConversationsLoading: e.Registry.Loading(),
		Messages:             e.Timeline.Messages(),
		Phase:                e.Timeline.Phase(),
		Sending:              e.Timeline.Sending(),
		SendError:            e.Timeline.SendError(),
		Reactions:            counts,
		Pending:              pending,
		ReactionErrors:       errs,
	}
}
