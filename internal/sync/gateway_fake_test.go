package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/driftline/chatsync/internal/model"
	"github.com/driftline/chatsync/pkg/logger"
)

// fakeGateway is a scripted gateway. Optional gate channels hold a
// call in flight until the test releases it.
type fakeGateway struct {
	mu            sync.Mutex
	conversations []model.Conversation
	convErr       error
	baseline      map[int64][]model.Message
	listErr       error
	listCalls     int
	listGate      chan struct{}
	createFn      func(conversationID int64, req model.CreateMessageRequest) (model.Message, error)
	createGate    chan struct{}
	retainCreated bool
	reactFn       func(messageID string, t model.ReactionType, value int) (model.ReactionCounts, error)
	reactCalls    int
	reactGate     chan struct{}
}

func (f *fakeGateway) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.convErr != nil {
		return nil, f.convErr
	}
	return append([]model.Conversation(nil), f.conversations...), nil
}

func (f *fakeGateway) ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error) {
	if f.listGate != nil {
		<-f.listGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Message(nil), f.baseline[conversationID]...), nil
}

func (f *fakeGateway) CreateMessage(ctx context.Context, conversationID int64, req model.CreateMessageRequest) (model.Message, error) {
	if f.createGate != nil {
		<-f.createGate
	}
	f.mu.Lock()
	fn := f.createFn
	f.mu.Unlock()
	m, err := fn(conversationID, req)
	if err == nil && f.retainCreated {
		// Model a gateway that keeps created messages and returns them
		// in later baselines.
		f.mu.Lock()
		f.baseline[conversationID] = append(f.baseline[conversationID], m)
		f.mu.Unlock()
	}
	return m, err
}

func (f *fakeGateway) UpdateReaction(ctx context.Context, messageID string, reactionType model.ReactionType, newValue int) (model.ReactionCounts, error) {
	if f.reactGate != nil {
		<-f.reactGate
	}
	f.mu.Lock()
	f.reactCalls++
	fn := f.reactFn
	f.mu.Unlock()
	if fn == nil {
		return model.ReactionCounts{}, nil
	}
	return fn(messageID, reactionType, newValue)
}

func (f *fakeGateway) reactCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reactCalls
}

func (f *fakeGateway) listCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// newTestEngine builds an engine over the fake with no persistence and
// a short reaction error TTL.
func newTestEngine(t *testing.T, gw *fakeGateway, ttl time.Duration) *Engine {
	t.Helper()
	if gw.baseline == nil {
		gw.baseline = make(map[int64][]model.Message)
	}
	e := New(gw, nil, logger.Nop(), Config{
		Profile:          Profile{UserID: 6, DisplayName: "Me", AvatarRef: "avatar://me"},
		ReactionErrorTTL: ttl,
	})
	t.Cleanup(e.Close)
	return e
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func msg(conversationID, senderID, ts int64, body string) model.Message {
	return model.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Sender:         "sender",
		Kind:           model.KindText,
		Body:           body,
		Timestamp:      ts,
	}
}
