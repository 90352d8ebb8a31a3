package event

import (
	"sync"

	"github.com/emrgen/vault/internal/model"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Type string

const (
	NodeAdded          Type = "node:added"
	NodeRemoved        Type = "node:removed"
	NodeMoved          Type = "node:moved"
	NodeRenamed        Type = "node:renamed"
	NodeContentUpdated Type = "node:content:updated"
	NodeMetaUpdated    Type = "node:meta:updated"
)

// Event is a committed node lifecycle change. Events are published only after
// the originating transaction has committed; aborted operations never emit.
type Event struct {
	Type     Type
	Module   string
	NodeID   string
	ParentID string
	// Node carries the updated node for content/meta/rename events and the
	// created node for NodeAdded.
	Node *model.Node
	// RemovedIDs lists the primary removed node plus every cascade-removed
	// descendant for NodeRemoved.
	RemovedIDs []string
}

type Handler func(Event)

// Subscription identifies one subscriber registration.
type Subscription struct {
	typ Type
	id  string
}

// Bus is an in-process publish/subscribe bus keyed by event type. Publishing
// is synchronous; a slow handler delays the publisher, never other handlers'
// registration state.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type]map[string]Handler
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Type]map[string]Handler),
	}
}

func (b *Bus) Subscribe(typ Type, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[typ] == nil {
		b.handlers[typ] = make(map[string]Handler)
	}
	id := uuid.New().String()
	b.handlers[typ][id] = h

	return Subscription{typ: typ, id: id}
}

// Unsubscribe removes one registration. Other subscribers of the same type
// are unaffected. Unsubscribing twice is a no-op.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers[sub.typ], sub.id)
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[e.Type]))
	for _, h := range b.handlers[e.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	logrus.Debugf("publishing event %s for node %s in module %s", e.Type, e.NodeID, e.Module)

	for _, h := range handlers {
		h(e)
	}
}
