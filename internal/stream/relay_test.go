// File path: internal/stream/relay_test.go
package stream

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicodishanthj/testcase_agent/internal/agent"
	"github.com/nicodishanthj/testcase_agent/internal/session"
	"github.com/nicodishanthj/testcase_agent/internal/turn"
)

type fakeRuntime struct {
	mu       sync.Mutex
	records  []agent.Record
	err      error
	threads  []string
	inputs   [][]turn.Input
	released bool
	onStart  func()
}

func (f *fakeRuntime) Stream(ctx context.Context, inputs []turn.Input, threadID string) iter.Seq2[agent.Record, error] {
	return func(yield func(agent.Record, error) bool) {
		f.mu.Lock()
		f.threads = append(f.threads, threadID)
		f.inputs = append(f.inputs, inputs)
		f.mu.Unlock()
		if f.onStart != nil {
			f.onStart()
		}
		defer func() {
			f.mu.Lock()
			f.released = true
			f.mu.Unlock()
		}()
		for _, rec := range f.records {
			if !yield(rec, nil) {
				return
			}
		}
		if f.err != nil {
			yield(nil, f.err)
		}
	}
}

type recordingStore struct {
	mu       sync.Mutex
	messages []session.Message
	failRole string
}

func (s *recordingStore) AddMessage(_ context.Context, conversationID, role, content string) (session.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role == s.failRole {
		return session.Message{}, errors.New("database is locked")
	}
	msg := session.Message{ID: int64(len(s.messages) + 1), ConversationID: conversationID, Role: role, Content: content}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *recordingStore) roles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Role
	}
	return out
}

func drain(seq iter.Seq[Event]) []Event {
	var out []Event
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}

func wrapped(node, content string) agent.Wrapped {
	return agent.Wrapped{Node: node, Messages: []agent.Message{{Role: "assistant", Content: content}}}
}

func newTestRelay(rt agent.Runtime, store MessageStore) *Relay {
	return NewRelay(rt, store, WithFragmentDelay(0))
}

func request(conv string) Request {
	return Request{
		Inputs:         []turn.Input{{Role: session.RoleUser, Text: "Generate test cases"}},
		ThreadID:       conv,
		ConversationID: conv,
		UserRecord:     "Generate test cases",
	}
}

func TestRelayFragmentsAndPersists(t *testing.T) {
	answer := strings.Repeat("a", 50) + strings.Repeat("b", 50) + "cc"
	rt := &fakeRuntime{records: []agent.Record{wrapped(agent.NodeAgent, answer)}}
	store := &recordingStore{}

	events := drain(newTestRelay(rt, store).Run(context.Background(), request("conv_1")))

	require.Len(t, events, 4)
	assert.Equal(t, strings.Repeat("a", 50), events[0].Content)
	assert.Equal(t, strings.Repeat("b", 50), events[1].Content)
	assert.Equal(t, "cc", events[2].Content)
	for _, ev := range events[:3] {
		assert.Equal(t, EventChunk, ev.Type)
		assert.Equal(t, "conv_1", ev.ConversationID)
	}
	assert.Equal(t, Event{Type: EventEnd, ConversationID: "conv_1"}, events[3])

	require.Len(t, store.messages, 2)
	assert.Equal(t, session.Message{ID: 1, ConversationID: "conv_1", Role: "user", Content: "Generate test cases"}, store.messages[0])
	assert.Equal(t, answer, store.messages[1].Content)
	assert.Equal(t, []string{"conv_1"}, rt.threads)
}

func TestRelayLastFullMessageWins(t *testing.T) {
	rt := &fakeRuntime{records: []agent.Record{
		wrapped(agent.NodeAgent, "draft"),
		wrapped("tools", `{"success":true}`),
		wrapped(agent.NodeAgent, ""),
		wrapped(agent.NodeAgent, "final"),
	}}
	store := &recordingStore{}

	events := drain(newTestRelay(rt, store).Run(context.Background(), request("conv_1")))

	var chunks []string
	for _, ev := range events {
		if ev.Type == EventChunk {
			chunks = append(chunks, ev.Content)
		}
	}
	assert.Equal(t, []string{"draft", "final"}, chunks)
	require.Len(t, store.messages, 2)
	assert.Equal(t, "final", store.messages[1].Content)
}

func TestRelayFlatRecordsBecomeMessageEvents(t *testing.T) {
	rt := &fakeRuntime{records: []agent.Record{
		agent.Flat{Messages: []agent.Message{{Role: "assistant", Content: strings.Repeat("x", 120)}}},
		agent.Unknown{Raw: 42},
	}}
	events := drain(newTestRelay(rt, &recordingStore{}).Run(context.Background(), request("conv_1")))

	require.Len(t, events, 2)
	assert.Equal(t, EventMessage, events[0].Type)
	assert.Len(t, events[0].Content, 120)
	assert.Equal(t, EventEnd, events[1].Type)
}

func TestRelayAgentErrorIsTerminal(t *testing.T) {
	rt := &fakeRuntime{
		records: []agent.Record{wrapped(agent.NodeAgent, "partial")},
		err:     errors.New("model unavailable"),
	}
	store := &recordingStore{}

	events := drain(newTestRelay(rt, store).Run(context.Background(), request("conv_1")))

	require.Len(t, events, 2)
	assert.Equal(t, EventChunk, events[0].Type)
	assert.Equal(t, Event{Type: EventError, Message: "model unavailable", ConversationID: "conv_1"}, events[1])
	assert.Equal(t, []string{"user"}, store.roles())
}

func TestRelayPersistsUserTurnBeforeAgentRuns(t *testing.T) {
	store := &recordingStore{}
	var rolesAtStart []string
	rt := &fakeRuntime{records: []agent.Record{wrapped(agent.NodeAgent, "ok")}}
	rt.onStart = func() { rolesAtStart = store.roles() }

	drain(newTestRelay(rt, store).Run(context.Background(), request("conv_1")))
	assert.Equal(t, []string{"user"}, rolesAtStart)
}

func TestRelayWithoutConversationWritesNothing(t *testing.T) {
	rt := &fakeRuntime{records: []agent.Record{wrapped(agent.NodeAgent, "answer")}}
	store := &recordingStore{}
	req := request("")
	req.ThreadID = "temp_1700000000"

	events := drain(newTestRelay(rt, store).Run(context.Background(), req))

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, Event{Type: EventEnd}, last)
	assert.Empty(t, store.messages)
	assert.Equal(t, []string{"temp_1700000000"}, rt.threads)

	raw, err := last.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"end","conversation_id":null}`, string(raw))
}

func TestRelayAssistantPersistFailureBecomesError(t *testing.T) {
	rt := &fakeRuntime{records: []agent.Record{wrapped(agent.NodeAgent, "answer")}}
	store := &recordingStore{failRole: session.RoleAssistant}

	events := drain(newTestRelay(rt, store).Run(context.Background(), request("conv_1")))

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Contains(t, last.Message, "database is locked")
	for _, ev := range events {
		assert.NotEqual(t, EventEnd, ev.Type)
	}
}

func TestRelayUserPersistFailureSkipsAgent(t *testing.T) {
	rt := &fakeRuntime{records: []agent.Record{wrapped(agent.NodeAgent, "answer")}}
	store := &recordingStore{failRole: session.RoleUser}

	events := drain(newTestRelay(rt, store).Run(context.Background(), request("conv_1")))

	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Empty(t, rt.threads)
}

func TestRelayConsumerBreakAbandonsStream(t *testing.T) {
	rt := &fakeRuntime{records: []agent.Record{wrapped(agent.NodeAgent, strings.Repeat("z", 200))}}
	store := &recordingStore{}

	count := 0
	for ev := range newTestRelay(rt, store).Run(context.Background(), request("conv_1")) {
		require.Equal(t, EventChunk, ev.Type)
		count++
		break
	}
	assert.Equal(t, 1, count)
	assert.True(t, rt.released)
	assert.Equal(t, []string{"user"}, store.roles())
}

func TestRelayCancelledContextStoresNoAnswer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt := &fakeRuntime{records: []agent.Record{wrapped(agent.NodeAgent, strings.Repeat("z", 200))}}
	store := &recordingStore{}
	relay := NewRelay(rt, store, WithFragmentDelay(DefaultFragmentDelay))

	var events []Event
	for ev := range relay.Run(ctx, request("conv_1")) {
		events = append(events, ev)
		cancel()
	}
	require.Len(t, events, 1)
	assert.Equal(t, []string{"user"}, store.roles())
}

func TestRelayNTurnsKeepOrder(t *testing.T) {
	store := &recordingStore{}
	for i := 0; i < 3; i++ {
		rt := &fakeRuntime{records: []agent.Record{wrapped(agent.NodeAgent, "answer")}}
		if i == 1 {
			rt.err = errors.New("boom")
		}
		drain(newTestRelay(rt, store).Run(context.Background(), request("conv_1")))
	}
	assert.Equal(t, []string{"user", "assistant", "user", "user", "assistant"}, store.roles())
}

func TestEventWireFormat(t *testing.T) {
	raw, err := Event{Type: EventChunk, Content: "Đăng nhập <ok> & done", ConversationID: "conv_1"}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"chunk","content":"Đăng nhập <ok> & done","role":"assistant","conversation_id":"conv_1"}`, string(raw))

	raw, err = Event{Type: EventError, Message: "boom"}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"error","message":"boom","conversation_id":null}`, string(raw))
}

func TestFragment(t *testing.T) {
	assert.Equal(t, []string{"ab", "cd", "e"}, Fragment("abcde", 2))
	assert.Equal(t, []string{"éé", "é"}, Fragment("ééé", 2))
	assert.Empty(t, Fragment("", 50))
}
