// File path: internal/agent/memory.go
package agent

import (
	"container/list"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// DefaultMemoryThreads bounds how many threads keep their checkpoint.
const DefaultMemoryThreads = 256

type checkpoint struct {
	threadID string
	messages []llms.MessageContent
}

// Checkpoints keeps the message history of recently used threads. The least
// recently used thread is evicted once capacity is exceeded.
type Checkpoints struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	ll       *list.List
}

func NewCheckpoints(capacity int) *Checkpoints {
	if capacity <= 0 {
		capacity = DefaultMemoryThreads
	}
	return &Checkpoints{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		ll:       list.New(),
	}
}

// Load returns a copy of the thread's history.
func (c *Checkpoints) Load(threadID string) []llms.MessageContent {
	if c == nil || threadID == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[threadID]
	if !ok {
		return nil
	}
	c.ll.MoveToFront(elem)
	cp := elem.Value.(checkpoint)
	return append([]llms.MessageContent(nil), cp.messages...)
}

// Save replaces the thread's history.
func (c *Checkpoints) Save(threadID string, messages []llms.MessageContent) {
	if c == nil || threadID == "" {
		return
	}
	stored := append([]llms.MessageContent(nil), messages...)
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[threadID]; ok {
		elem.Value = checkpoint{threadID: threadID, messages: stored}
		c.ll.MoveToFront(elem)
		return
	}
	c.items[threadID] = c.ll.PushFront(checkpoint{threadID: threadID, messages: stored})
	if c.ll.Len() > c.capacity {
		if tail := c.ll.Back(); tail != nil {
			c.ll.Remove(tail)
			delete(c.items, tail.Value.(checkpoint).threadID)
		}
	}
}

// Forget drops a thread's history.
func (c *Checkpoints) Forget(threadID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[threadID]; ok {
		c.ll.Remove(elem)
		delete(c.items, threadID)
	}
}

func (c *Checkpoints) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
