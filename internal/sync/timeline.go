package sync

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/driftline/chatsync/internal/gateway"
	"github.com/driftline/chatsync/internal/model"
	"github.com/driftline/chatsync/pkg/logger"
	"github.com/driftline/chatsync/pkg/metrics"
)

// LoadPhase is the coarse loading state the timeline reports. The merge
// performed is identical in every phase; the distinction only tells a
// view layer whether to show a placeholder or keep stale content.
type LoadPhase int

const (
	PhaseIdle LoadPhase = iota
	// PhaseLoading is the first-ever load of a session, with nothing
	// on screen yet.
	PhaseLoading
	// PhaseRefreshing is a subsequent conversation switch while prior
	// messages remain visible.
	PhaseRefreshing
)

func (p LoadPhase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseRefreshing:
		return "refreshing"
	default:
		return "idle"
	}
}

// ImagePreviewLabel is the conversation preview recorded for image
// sends in place of the literal body.
const ImagePreviewLabel = "[image]"

// Profile is the local user's identity, supplied on sends so an
// unknown sender can be auto-enrolled by the gateway.
type Profile struct {
	UserID      int64
	DisplayName string
	AvatarRef   string
}

// SnapshotWriter is the write-through side of the durable snapshot
// store, satisfied by *snapshot.Store. A nil writer disables
// persistence.
type SnapshotWriter interface {
	AppendAuthored(msg model.Message) error
	PutReactions(messageID string, counts model.ReactionCounts) error
}

// MessageTimeline owns message state for the active conversation: the
// merged, time-ordered view of remote baseline messages and locally
// authored ones.
type MessageTimeline struct {
	gateway   gateway.Gateway
	logger    *logger.Logger
	registry  *ConversationRegistry
	reactions *ReactionSynchronizer
	snap      SnapshotWriter
	notify    *notifier
	profile   Profile

	mu       sync.RWMutex
	merged   []model.Message
	authored []model.Message
	phase    LoadPhase
	sending  bool
	sendErr  string
}

// NewMessageTimeline creates a timeline bound to the registry it
// reports previews to and the synchronizer it seeds counters into.
func NewMessageTimeline(gw gateway.Gateway, log *logger.Logger, reg *ConversationRegistry, reactions *ReactionSynchronizer, snap SnapshotWriter, n *notifier, profile Profile) *MessageTimeline {
	return &MessageTimeline{
		gateway:   gw,
		logger:    log.Component("timeline"),
		registry:  reg,
		reactions: reactions,
		snap:      snap,
		notify:    n,
		profile:   profile,
	}
}

// Load rebuilds the merged view for a conversation: gateway baseline
// plus locally authored messages, sorted ascending by timestamp. A
// gateway failure is logged and leaves the view empty for this load;
// it is never surfaced as a user-facing error and never retried here.
func (t *MessageTimeline) Load(ctx context.Context, conversationID int64) {
	t.mu.Lock()
	if len(t.merged) > 0 {
		t.phase = PhaseRefreshing
	} else {
		t.phase = PhaseLoading
	}
	t.mu.Unlock()
	t.notify.fire()

	baseline, err := t.gateway.ListMessages(ctx, conversationID)
	metrics.RecordGatewayCall("list_messages", err)

	t.mu.Lock()
	t.phase = PhaseIdle
	if err != nil {
		t.logger.Error("failed to load messages",
			zap.Int64("conversation_id", conversationID),
			zap.Error(err),
		)
		t.merged = nil
		t.mu.Unlock()
		metrics.TimelineLoadsTotal.WithLabelValues(metrics.ResultError).Inc()
		t.notify.fire()
		return
	}

	// A gateway that retains created messages returns them in the
	// baseline on reload. The merge is a union keyed by message id;
	// the authored copy wins.
	authoredIDs := make(map[string]struct{})
	for _, msg := range t.authored {
		if msg.ConversationID == conversationID {
			authoredIDs[msg.ID()] = struct{}{}
		}
	}
	merged := make([]model.Message, 0, len(baseline)+len(authoredIDs))
	for _, msg := range baseline {
		if _, dup := authoredIDs[msg.ID()]; dup {
			continue
		}
		merged = append(merged, msg)
	}
	for _, msg := range t.authored {
		if msg.ConversationID == conversationID {
			merged = append(merged, msg)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	t.merged = merged
	t.mu.Unlock()

	// Seed baseline counters; existing local counters always win.
	for _, msg := range merged {
		t.reactions.Seed(msg.ID(), msg.Reactions)
	}

	metrics.TimelineLoadsTotal.WithLabelValues(metrics.ResultOK).Inc()
	t.notify.fire()
}

// Send creates a message through the gateway and, on success, records
// it in the authored store and the merged view, then updates the
// conversation preview. Failures surface as a send error string that
// only an explicit ClearSendError (or a later successful send) clears.
func (t *MessageTimeline) Send(ctx context.Context, conversationID int64, body string, kind model.MessageKind) {
	if strings.TrimSpace(body) == "" {
		return
	}

	t.mu.Lock()
	t.sending = true
	t.sendErr = ""
	t.mu.Unlock()
	t.notify.fire()

	msg, err := t.gateway.CreateMessage(ctx, conversationID, model.CreateMessageRequest{
		SenderID:  t.profile.UserID,
		Body:      body,
		Kind:      kind,
		Sender:    t.profile.DisplayName,
		AvatarRef: t.profile.AvatarRef,
	})
	metrics.RecordGatewayCall("create_message", err)

	if err != nil {
		t.mu.Lock()
		t.sending = false
		t.sendErr = err.Error()
		t.mu.Unlock()

		t.logger.Error("failed to send message",
			zap.Int64("conversation_id", conversationID),
			zap.Error(err),
		)
		metrics.SendsTotal.WithLabelValues(metrics.ResultError).Inc()
		t.notify.fire()
		return
	}

	t.mu.Lock()
	t.sending = false
	t.authored = append(t.authored, msg)
	// The merged view only gains the message when its conversation is
	// still on screen; the authored store and preview update are keyed
	// by conversation id and happen regardless of navigation.
	if t.registry.Selected() == conversationID {
		t.merged = insertByTimestamp(t.merged, msg)
	}
	t.mu.Unlock()

	t.registry.RecordLastMessage(conversationID, previewFor(kind, body), msg.Timestamp)

	if t.snap != nil {
		if err := t.snap.AppendAuthored(msg); err != nil {
			t.logger.Warn("failed to persist authored message",
				zap.String("message_id", msg.ID()),
				zap.Error(err),
			)
		}
	}

	metrics.SendsTotal.WithLabelValues(metrics.ResultOK).Inc()
	t.notify.fire()
}

// ClearSendError clears the surfaced send failure.
func (t *MessageTimeline) ClearSendError() {
	t.mu.Lock()
	had := t.sendErr != ""
	t.sendErr = ""
	t.mu.Unlock()

	if had {
		t.notify.fire()
	}
}

// Messages returns a copy of the merged view.
func (t *MessageTimeline) Messages() []model.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]model.Message(nil), t.merged...)
}

// Authored returns a copy of the authored-message store.
func (t *MessageTimeline) Authored() []model.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]model.Message(nil), t.authored...)
}

// Phase returns the current load phase.
func (t *MessageTimeline) Phase() LoadPhase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.phase
}

// Sending reports whether a send is in flight.
func (t *MessageTimeline) Sending() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sending
}

// SendError returns the surfaced send failure, empty when none.
func (t *MessageTimeline) SendError() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sendErr
}

// restore installs persisted authored messages at bootstrap.
func (t *MessageTimeline) restore(authored []model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.authored = append(t.authored, authored...)
}

func insertByTimestamp(msgs []model.Message, msg model.Message) []model.Message {
	i := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].Timestamp > msg.Timestamp
	})
	out := append(msgs[:i:i], msg)
	return append(out, msgs[i:]...)
}

func previewFor(kind model.MessageKind, body string) string {
	if kind == model.KindImage {
		return ImagePreviewLabel
	}
	return body
}
