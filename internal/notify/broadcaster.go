// Package notify fans engine outcomes out to local subscribers. The
// stream is the engine's half of editor integration: an editor plugin
// that wants to redirect views after a folder rename or restore folded
// regions after a skipped push subscribes here.
package notify

import (
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/agentworkforce/pagemirror/internal/remote"
)

const (
	EventEntityCreated  = "entity.created"
	EventEntityTrashed  = "entity.trashed"
	EventEntityRestored = "entity.restored"
	EventEntityRenamed  = "entity.renamed"
	EventFolderMerged   = "folder.merged"
	EventMetadataPushed = "metadata.pushed"
	EventContentPushed  = "content.pushed"
	EventContentSkipped = "content.skipped"
	EventActionsBlocked = "actions.blocked"
	EventError          = "error"
)

// Event describes one engine outcome.
type Event struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Timestamp       int64          `json:"timestamp"`
	Identifier      int64          `json:"identifier,omitempty"`
	Collection      string         `json:"collection,omitempty"`
	Slug            string         `json:"slug,omitempty"`
	Path            string         `json:"path,omitempty"`
	OldPath         string         `json:"oldPath,omitempty"`
	NewPath         string         `json:"newPath,omitempty"`
	Count           int            `json:"count,omitempty"`
	Message         string         `json:"message,omitempty"`
	UnchangedRanges []remote.Range `json:"unchangedRanges,omitempty"`
}

// Broadcaster manages subscribers and publishes engine outcomes.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[chan Event]struct{})}
}

// Subscribe adds a subscriber and returns its channel. The caller
// must Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	close(ch)
	b.mu.Unlock()
}

// Publish sends an event to every subscriber. Non-blocking: slow
// consumers lose events rather than stalling the engine.
func (b *Broadcaster) Publish(event Event) {
	if event.ID == "" {
		event.ID = xid.New().String()
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Count returns the number of active subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
