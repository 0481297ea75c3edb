package sync

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/driftline/chatsync/internal/gateway"
	"github.com/driftline/chatsync/internal/model"
)

func TestLoadMergesBaselineAndAuthoredByTimestamp(t *testing.T) {
	gw := &fakeGateway{
		baseline: map[int64][]model.Message{
			1: {msg(1, 2, 3000, "c"), msg(1, 2, 1000, "a")},
		},
	}
	e := newTestEngine(t, gw, 0)
	e.Timeline.restore([]model.Message{
		msg(1, 6, 2000, "b"),
		msg(2, 6, 1500, "other conversation"),
	})

	e.Timeline.Load(context.Background(), 1)

	got := e.Timeline.Messages()
	if len(got) != 3 {
		t.Fatalf("merged view has %d messages, want 3", len(got))
	}
	if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Timestamp < got[j].Timestamp }) {
		t.Fatal("merged view is not sorted by timestamp")
	}
	bodies := []string{got[0].Body, got[1].Body, got[2].Body}
	want := []string{"a", "b", "c"}
	for i := range want {
		if bodies[i] != want[i] {
			t.Fatalf("merged order %v, want %v", bodies, want)
		}
	}
}

func TestLoadSeedsReactionCounters(t *testing.T) {
	baseline := msg(1, 2, 1000, "a")
	baseline.Reactions = model.ReactionCounts{Love: 4}
	gw := &fakeGateway{baseline: map[int64][]model.Message{1: {baseline}}}
	e := newTestEngine(t, gw, 0)

	e.Timeline.Load(context.Background(), 1)

	if got := e.Reactions.Counts("1-1000").Love; got != 4 {
		t.Fatalf("love = %d, want baseline seed 4", got)
	}

	// A local mutation must survive a reload with the stale baseline.
	gw.mu.Lock()
	gw.reactFn = func(messageID string, rt model.ReactionType, value int) (model.ReactionCounts, error) {
		return model.ReactionCounts{Love: value}, nil
	}
	gw.mu.Unlock()
	e.Reactions.Toggle(context.Background(), "1-1000", model.ReactionLove)
	e.Timeline.Load(context.Background(), 1)

	if got := e.Reactions.Counts("1-1000").Love; got != 5 {
		t.Fatalf("love = %d after reload, local counter must win over stale baseline", got)
	}
}

func TestLoadFailureDegradesToEmptyView(t *testing.T) {
	gw := &fakeGateway{listErr: errors.New("transport down")}
	e := newTestEngine(t, gw, 0)
	e.Timeline.restore([]model.Message{msg(1, 6, 2000, "kept in authored store")})

	e.Timeline.Load(context.Background(), 1)

	if got := e.Timeline.Messages(); len(got) != 0 {
		t.Fatalf("merged view has %d messages after load failure, want 0", len(got))
	}
	if e.Timeline.Phase() != PhaseIdle {
		t.Fatalf("phase = %v after failed load, want idle", e.Timeline.Phase())
	}
	if e.Timeline.SendError() != "" {
		t.Fatal("load failures must not surface as user-facing errors")
	}
	if calls := gw.listCallCount(); calls != 1 {
		t.Fatalf("gateway calls = %d, load failures must not retry", calls)
	}
	// The authored store is untouched by a failed load.
	if got := e.Timeline.Authored(); len(got) != 1 {
		t.Fatalf("authored store has %d messages, want 1", len(got))
	}
}

func TestLoadPhases(t *testing.T) {
	gate := make(chan struct{})
	gw := &fakeGateway{
		baseline: map[int64][]model.Message{1: {msg(1, 2, 1000, "a")}},
		listGate: gate,
	}
	e := newTestEngine(t, gw, 0)

	done := make(chan struct{})
	go func() {
		e.Timeline.Load(context.Background(), 1)
		close(done)
	}()
	waitFor(t, time.Second, func() bool { return e.Timeline.Phase() == PhaseLoading })
	gate <- struct{}{}
	<-done
	if e.Timeline.Phase() != PhaseIdle {
		t.Fatalf("phase = %v after load, want idle", e.Timeline.Phase())
	}

	// With messages on screen, a switch reports refreshing instead.
	done = make(chan struct{})
	go func() {
		e.Timeline.Load(context.Background(), 2)
		close(done)
	}()
	waitFor(t, time.Second, func() bool { return e.Timeline.Phase() == PhaseRefreshing })
	gate <- struct{}{}
	<-done
}

func TestSendAppendsAndRecordsPreview(t *testing.T) {
	gw := &fakeGateway{
		conversations: []model.Conversation{{ID: 1}},
		baseline:      map[int64][]model.Message{},
		createFn: func(conversationID int64, req model.CreateMessageRequest) (model.Message, error) {
			return model.Message{
				ConversationID: conversationID,
				SenderID:       req.SenderID,
				Sender:         req.Sender,
				AvatarRef:      req.AvatarRef,
				Kind:           req.Kind,
				Body:           req.Body,
				Timestamp:      5000,
			}, nil
		},
	}
	e := newTestEngine(t, gw, 0)
	e.Registry.Initialize(context.Background())
	e.Registry.Select(context.Background(), 1)

	e.Timeline.Send(context.Background(), 1, "hello", model.KindText)

	if got := e.Timeline.Messages(); len(got) != 1 || got[0].Body != "hello" {
		t.Fatalf("merged view = %+v, want the sent message", got)
	}
	if got := e.Timeline.Authored(); len(got) != 1 {
		t.Fatalf("authored store has %d messages, want 1", len(got))
	}
	conv := e.Registry.Conversations()[0]
	if conv.LastMessagePreview != "hello" || conv.LastActivityTS != 5000 {
		t.Fatalf("preview = %q ts = %d, want \"hello\" 5000", conv.LastMessagePreview, conv.LastActivityTS)
	}
	if e.Timeline.Sending() {
		t.Fatal("sending flag should clear after completion")
	}
}

func TestSendImageUsesPlaceholderPreview(t *testing.T) {
	gw := &fakeGateway{
		conversations: []model.Conversation{{ID: 1}},
		createFn: func(conversationID int64, req model.CreateMessageRequest) (model.Message, error) {
			return msg(conversationID, req.SenderID, 6000, req.Body), nil
		},
	}
	e := newTestEngine(t, gw, 0)
	e.Registry.Initialize(context.Background())

	e.Timeline.Send(context.Background(), 1, "https://example.com/cat.png", model.KindImage)

	conv := e.Registry.Conversations()[0]
	if conv.LastMessagePreview != ImagePreviewLabel {
		t.Fatalf("preview = %q, want %q", conv.LastMessagePreview, ImagePreviewLabel)
	}
}

func TestSendFailureSurfacesErrorAndAppendsNothing(t *testing.T) {
	gw := &fakeGateway{
		conversations: []model.Conversation{{ID: 1, LastMessagePreview: "before"}},
		createFn: func(conversationID int64, req model.CreateMessageRequest) (model.Message, error) {
			return model.Message{}, gateway.ErrSenderNotInConversation
		},
	}
	e := newTestEngine(t, gw, 0)
	e.Registry.Initialize(context.Background())

	e.Timeline.Send(context.Background(), 1, "hello", model.KindText)

	if e.Timeline.SendError() == "" {
		t.Fatal("send failure must surface an error string")
	}
	if got := e.Timeline.Authored(); len(got) != 0 {
		t.Fatal("a failed send must not partially append")
	}
	if got := e.Timeline.Messages(); len(got) != 0 {
		t.Fatal("merged view must stay unchanged on failure")
	}
	if conv := e.Registry.Conversations()[0]; conv.LastMessagePreview != "before" {
		t.Fatalf("preview = %q, must not change on failure", conv.LastMessagePreview)
	}

	// Cleared only by explicit action.
	e.Timeline.ClearSendError()
	if e.Timeline.SendError() != "" {
		t.Fatal("ClearSendError must clear the surfaced error")
	}
}

func TestSendBlankBodyIsNoOp(t *testing.T) {
	gw := &fakeGateway{
		createFn: func(conversationID int64, req model.CreateMessageRequest) (model.Message, error) {
			t.Fatal("gateway must not be called for a blank body")
			return model.Message{}, nil
		},
	}
	e := newTestEngine(t, gw, 0)

	e.Timeline.Send(context.Background(), 1, "   ", model.KindText)

	if e.Timeline.Sending() || e.Timeline.SendError() != "" {
		t.Fatal("blank send must not touch state")
	}
}

func TestAuthoredMessageSurvivesConversationSwitches(t *testing.T) {
	gw := &fakeGateway{
		conversations: []model.Conversation{{ID: 1}, {ID: 2}},
		baseline: map[int64][]model.Message{
			1: {msg(1, 2, 1000, "baseline-early"), msg(1, 2, 9000, "baseline-late")},
			2: {msg(2, 3, 500, "elsewhere")},
		},
		createFn: func(conversationID int64, req model.CreateMessageRequest) (model.Message, error) {
			return msg(conversationID, req.SenderID, 5000, req.Body), nil
		},
	}
	e := newTestEngine(t, gw, 0)
	e.Registry.Initialize(context.Background())
	e.Registry.Select(context.Background(), 1)

	e.Timeline.Send(context.Background(), 1, "hello", model.KindText)
	e.Registry.Select(context.Background(), 2)
	e.Registry.Select(context.Background(), 1)

	got := e.Timeline.Messages()
	if len(got) != 3 {
		t.Fatalf("merged view has %d messages, want 3", len(got))
	}
	if got[1].Body != "hello" || got[1].Timestamp != 5000 {
		t.Fatalf("authored message missing or misplaced: %+v", got)
	}
}

func TestReloadDoesNotDuplicateAuthoredMessages(t *testing.T) {
	gw := &fakeGateway{
		conversations: []model.Conversation{{ID: 1}, {ID: 2}},
		baseline: map[int64][]model.Message{
			1: {msg(1, 2, 1000, "baseline")},
		},
		retainCreated: true,
		createFn: func(conversationID int64, req model.CreateMessageRequest) (model.Message, error) {
			return msg(conversationID, req.SenderID, 5000, req.Body), nil
		},
	}
	e := newTestEngine(t, gw, 0)
	e.Registry.Initialize(context.Background())
	e.Registry.Select(context.Background(), 1)

	// The gateway retains the created message, so the next baseline
	// contains it too; the merged view must hold a single copy.
	e.Timeline.Send(context.Background(), 1, "hello", model.KindText)
	e.Registry.Select(context.Background(), 2)
	e.Registry.Select(context.Background(), 1)

	copies := 0
	for _, m := range e.Timeline.Messages() {
		if m.Body == "hello" {
			copies++
		}
	}
	if copies != 1 {
		t.Fatalf("merged view contains %d copies of the sent message, want 1", copies)
	}
	if got := e.Timeline.Messages(); len(got) != 2 {
		t.Fatalf("merged view has %d messages, want 2", len(got))
	}
}

func TestRestoredSnapshotDoesNotDuplicateBaseline(t *testing.T) {
	authored := msg(1, 6, 5000, "mine")
	gw := &fakeGateway{
		conversations: []model.Conversation{{ID: 1}},
		baseline: map[int64][]model.Message{
			1: {msg(1, 2, 1000, "baseline"), authored},
		},
	}
	e := newTestEngine(t, gw, 0)
	// A restart restores the authored store while the gateway still
	// serves the same message in its baseline.
	e.Timeline.restore([]model.Message{authored})

	e.Timeline.Load(context.Background(), 1)

	got := e.Timeline.Messages()
	if len(got) != 2 {
		t.Fatalf("merged view has %d messages, want 2", len(got))
	}
	if got[1].Body != "mine" {
		t.Fatalf("merged view = %+v, want the authored copy last", got)
	}
}

func TestSendCompletionAfterNavigationSkipsMergedView(t *testing.T) {
	gate := make(chan struct{})
	gw := &fakeGateway{
		conversations: []model.Conversation{{ID: 1}, {ID: 2}},
		baseline:      map[int64][]model.Message{},
		createGate:    gate,
		createFn: func(conversationID int64, req model.CreateMessageRequest) (model.Message, error) {
			return msg(conversationID, req.SenderID, 5000, req.Body), nil
		},
	}
	e := newTestEngine(t, gw, 0)
	e.Registry.Initialize(context.Background())
	e.Registry.Select(context.Background(), 1)

	done := make(chan struct{})
	go func() {
		e.Timeline.Send(context.Background(), 1, "hello", model.KindText)
		close(done)
	}()
	waitFor(t, time.Second, func() bool { return e.Timeline.Sending() })

	// Navigate away while the send is in flight; it is not cancelled.
	e.Registry.Select(context.Background(), 2)
	close(gate)
	<-done

	for _, m := range e.Timeline.Messages() {
		if m.Body == "hello" {
			t.Fatal("completed send must not leak into another conversation's view")
		}
	}
	if got := e.Timeline.Authored(); len(got) != 1 {
		t.Fatalf("authored store has %d messages, want 1", len(got))
	}
	for _, conv := range e.Registry.Conversations() {
		if conv.ID == 1 && conv.LastMessagePreview != "hello" {
			t.Fatalf("conversation 1 preview = %q, want \"hello\"", conv.LastMessagePreview)
		}
	}

	// Returning shows the authored message.
	e.Registry.Select(context.Background(), 1)
	got := e.Timeline.Messages()
	if len(got) != 1 || got[0].Body != "hello" {
		t.Fatalf("merged view = %+v, want the authored message", got)
	}
}
