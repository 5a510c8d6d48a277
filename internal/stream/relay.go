// File path: internal/stream/relay.go
package stream

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/nicodishanthj/testcase_agent/internal/agent"
	"github.com/nicodishanthj/testcase_agent/internal/common"
	"github.com/nicodishanthj/testcase_agent/internal/common/telemetry"
	"github.com/nicodishanthj/testcase_agent/internal/session"
	"github.com/nicodishanthj/testcase_agent/internal/turn"
)

const (
	DefaultFragmentSize  = 50
	DefaultFragmentDelay = 50 * time.Millisecond
)

// MessageStore is the subset of the session store the relay writes to.
type MessageStore interface {
	AddMessage(ctx context.Context, conversationID, role, content string) (session.Message, error)
}

// Request describes one relayed turn. ConversationID keys persistence; when
// it is empty nothing is written. UserRecord, when set, is stored as the
// user message before the agent runs.
type Request struct {
	Inputs         []turn.Input
	ThreadID       string
	ConversationID string
	UserRecord     string
}

// Relay forwards agent output to a client as fragmented events and stores
// the completed assistant answer.
type Relay struct {
	runtime      agent.Runtime
	store        MessageStore
	fragmentSize int
	delay        time.Duration
	metrics      *telemetry.Metrics
}

type Option func(*Relay)

// WithFragmentSize sets the chunk length in characters.
func WithFragmentSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.fragmentSize = n
		}
	}
}

// WithFragmentDelay sets the pause between chunks. Zero disables pacing.
func WithFragmentDelay(d time.Duration) Option {
	return func(r *Relay) {
		if d >= 0 {
			r.delay = d
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func NewRelay(runtime agent.Runtime, store MessageStore, opts ...Option) *Relay {
	r := &Relay{
		runtime:      runtime,
		store:        store,
		fragmentSize: DefaultFragmentSize,
		delay:        DefaultFragmentDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run relays one turn. The sequence ends with exactly one End or Error
// event unless the consumer stops early or ctx is cancelled, in which case
// the agent run is abandoned and the assistant answer is not stored.
func (r *Relay) Run(ctx context.Context, req Request) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		logger := common.Logger()
		conv := req.ConversationID
		start := time.Now()
		outcome := telemetry.OutcomeAbandoned
		chunks := 0
		stopped := false
		emit := func(ev Event) bool {
			if stopped {
				return false
			}
			if !yield(ev) {
				stopped = true
			}
			return !stopped
		}
		fail := func(err error) {
			outcome = telemetry.OutcomeError
			logger.Warn("relay: stream failed", "conversation_id", conv, "thread_id", req.ThreadID, "error", err)
			emit(Event{Type: EventError, Message: err.Error(), ConversationID: conv})
		}
		defer func() {
			if rec := recover(); rec != nil {
				fail(fmt.Errorf("relay panic: %v", rec))
			}
			r.metrics.RecordStream(outcome, time.Since(start))
			logger.Info("relay: stream finished", "conversation_id", conv, "thread_id", req.ThreadID, "outcome", outcome, "chunks", chunks)
		}()

		if r.runtime == nil {
			fail(fmt.Errorf("no agent runtime configured"))
			return
		}
		if conv != "" && req.UserRecord != "" {
			if err := r.persist(ctx, conv, session.RoleUser, req.UserRecord); err != nil {
				fail(err)
				return
			}
		}

		var response string
		for rec, err := range r.runtime.Stream(ctx, req.Inputs, req.ThreadID) {
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				fail(err)
				return
			}
			switch rec := rec.(type) {
			case agent.Wrapped:
				if rec.Node != agent.NodeAgent {
					continue
				}
				for _, msg := range rec.Messages {
					if msg.Content == "" {
						continue
					}
					response = msg.Content
					for i, fragment := range Fragment(msg.Content, r.fragmentSize) {
						if i > 0 {
							if err := r.pause(ctx); err != nil {
								return
							}
						}
						if !emit(Event{Type: EventChunk, Content: fragment, ConversationID: conv}) {
							return
						}
						chunks++
						r.metrics.RecordFragment()
					}
				}
			case agent.Flat:
				for _, msg := range rec.Messages {
					if msg.Content == "" {
						continue
					}
					response = msg.Content
					if !emit(Event{Type: EventMessage, Content: msg.Content, ConversationID: conv}) {
						return
					}
					chunks++
					r.metrics.RecordFragment()
				}
			default:
				logger.Debug("relay: ignoring agent record", "shape", rec.Shape())
			}
		}
		if ctx.Err() != nil {
			return
		}

		if conv != "" && response != "" {
			if err := r.persist(ctx, conv, session.RoleAssistant, response); err != nil {
				fail(err)
				return
			}
		}
		outcome = telemetry.OutcomeEnd
		emit(Event{Type: EventEnd, ConversationID: conv})
	}
}

func (r *Relay) persist(ctx context.Context, conv, role, content string) error {
	if r.store == nil {
		return nil
	}
	if _, err := r.store.AddMessage(ctx, conv, role, content); err != nil {
		r.metrics.RecordPersistFailure(role)
		return fmt.Errorf("store %s message: %w", role, err)
	}
	return nil
}

func (r *Relay) pause(ctx context.Context) error {
	if r.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fragment splits text into pieces of at most size characters.
func Fragment(text string, size int) []string {
	if size <= 0 {
		size = DefaultFragmentSize
	}
	runes := []rune(text)
	fragments := make([]string, 0, (len(runes)+size-1)/size)
	for i := 0; i < len(runes); i += size {
		end := min(i+size, len(runes))
		fragments = append(fragments, string(runes[i:end]))
	}
	return fragments
}
