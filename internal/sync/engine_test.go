package sync

import (
	"context"
	"sync"
	"testing"

	"github.com/driftline/chatsync/internal/model"
	"github.com/driftline/chatsync/pkg/logger"
)

// memorySnapshot is an in-memory SnapshotSource for engine tests.
type memorySnapshot struct {
	mu        sync.Mutex
	authored  []model.Message
	reactions map[string]model.ReactionCounts
	writes    int
}

func newMemorySnapshot() *memorySnapshot {
	return &memorySnapshot{reactions: make(map[string]model.ReactionCounts)}
}

func (m *memorySnapshot) AppendAuthored(msg model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authored = append(m.authored, msg)
	m.writes++
	return nil
}

func (m *memorySnapshot) PutReactions(messageID string, counts model.ReactionCounts) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions[messageID] = counts
	m.writes++
	return nil
}

func (m *memorySnapshot) Load() ([]model.Message, map[string]model.ReactionCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reactions := make(map[string]model.ReactionCounts, len(m.reactions))
	for k, v := range m.reactions {
		reactions[k] = v
	}
	return append([]model.Message(nil), m.authored...), reactions, nil
}

func TestBootstrapRestoresSnapshot(t *testing.T) {
	snap := newMemorySnapshot()
	snap.authored = []model.Message{msg(1, 6, 2000, "restored")}
	snap.reactions["1-2000"] = model.ReactionCounts{Love: 9}

	gw := &fakeGateway{
		conversations: []model.Conversation{{ID: 1}},
		baseline:      map[int64][]model.Message{},
	}
	e := New(gw, snap, logger.Nop(), Config{Profile: Profile{UserID: 6}})
	t.Cleanup(e.Close)

	e.Bootstrap(context.Background())
	e.Registry.Select(context.Background(), 1)

	got := e.Timeline.Messages()
	if len(got) != 1 || got[0].Body != "restored" {
		t.Fatalf("merged view = %+v, want the restored authored message", got)
	}
	if counts := e.Reactions.Counts("1-2000"); counts.Love != 9 {
		t.Fatalf("love = %d, want restored 9", counts.Love)
	}
}

func TestRestoredCountersBeatBaselineSeed(t *testing.T) {
	snap := newMemorySnapshot()
	snap.reactions["1-1000"] = model.ReactionCounts{Like: 8}

	baseline := msg(1, 2, 1000, "a")
	baseline.Reactions = model.ReactionCounts{Like: 2}
	gw := &fakeGateway{
		conversations: []model.Conversation{{ID: 1}},
		baseline:      map[int64][]model.Message{1: {baseline}},
	}
	e := New(gw, snap, logger.Nop(), Config{Profile: Profile{UserID: 6}})
	t.Cleanup(e.Close)

	e.Bootstrap(context.Background())
	e.Registry.Select(context.Background(), 1)

	if got := e.Reactions.Counts("1-1000").Like; got != 8 {
		t.Fatalf("like = %d, restored counter must win over baseline seed", got)
	}
}

func TestWriteThroughOnSendAndToggle(t *testing.T) {
	snap := newMemorySnapshot()
	gw := &fakeGateway{
		conversations: []model.Conversation{{ID: 1}},
		baseline:      map[int64][]model.Message{},
		createFn: func(conversationID int64, req model.CreateMessageRequest) (model.Message, error) {
			return msg(conversationID, req.SenderID, 4000, req.Body), nil
		},
		reactFn: func(messageID string, rt model.ReactionType, value int) (model.ReactionCounts, error) {
			return model.ReactionCounts{}.With(rt, value), nil
		},
	}
	e := New(gw, snap, logger.Nop(), Config{Profile: Profile{UserID: 6}})
	t.Cleanup(e.Close)
	e.Bootstrap(context.Background())

	e.Timeline.Send(context.Background(), 1, "persist me", model.KindText)
	e.Reactions.Toggle(context.Background(), "1-4000", model.ReactionLike)

	snap.mu.Lock()
	defer snap.mu.Unlock()
	if len(snap.authored) != 1 || snap.authored[0].Body != "persist me" {
		t.Fatalf("snapshot authored = %+v, want the sent message", snap.authored)
	}
	if counts := snap.reactions["1-4000"]; counts.Like != 1 {
		t.Fatalf("snapshot reactions = %+v, want like 1", counts)
	}
}

func TestOnChangeFires(t *testing.T) {
	gw := &fakeGateway{conversations: []model.Conversation{{ID: 1}}}
	e := newTestEngine(t, gw, 0)

	var mu sync.Mutex
	fired := 0
	e.OnChange(func() {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	e.Registry.Initialize(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if fired == 0 {
		t.Fatal("OnChange listener never fired")
	}
}

func TestStateViewIsDetached(t *testing.T) {
	gw := &fakeGateway{
		conversations: []model.Conversation{{ID: 1, Participants: []model.Participant{{UserID: 2}}}},
		baseline:      map[int64][]model.Message{1: {msg(1, 2, 1000, "a")}},
	}
	e := newTestEngine(t, gw, 0)
	e.Registry.Initialize(context.Background())
	e.Registry.Select(context.Background(), 1)

	state := e.State()
	state.Conversations[0].LastMessagePreview = "mutated"
	state.Messages[0].Body = "mutated"
	state.Reactions["1-1000"] = model.ReactionCounts{Like: 99}

	if e.Registry.Conversations()[0].LastMessagePreview == "mutated" {
		t.Fatal("state view aliases registry state")
	}
	if e.Timeline.Messages()[0].Body == "mutated" {
		t.Fatal("state view aliases timeline state")
	}
	if e.Reactions.Counts("1-1000").Like == 99 {
		t.Fatal("state view aliases reaction state")
	}
}
