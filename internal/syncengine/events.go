package syncengine

import (
	"time"

	"github.com/pixeltennis/pixeltennis/internal/store"
)

// Indicator summarizes sync state for display.
type Indicator string

const (
	IndicatorOffline Indicator = "offline"
	IndicatorSyncing Indicator = "syncing"
	IndicatorPending Indicator = "pending"
	IndicatorSynced  Indicator = "synced"
)

// Status is a point-in-time view of the engine.
type Status struct {
	Indicator      Indicator    `json:"indicator"`
	Online         bool         `json:"online"`
	SignedIn       bool         `json:"signedIn"`
	Syncing        bool         `json:"syncing"`
	Pending        int          `json:"pending"`
	StorageWarning string       `json:"storageWarning,omitempty"`
	LastFlush      time.Time    `json:"lastFlush"`
	LastResult     *FlushResult `json:"lastResult,omitempty"`
}

func indicatorFor(s Status) Indicator {
	switch {
	case !s.Online:
		return IndicatorOffline
	case s.Syncing:
		return IndicatorSyncing
	case s.Pending > 0:
		return IndicatorPending
	}
	return IndicatorSynced
}

// FlushResult counts the outcome of one flush.
type FlushResult struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
	// Skipped is set when there was nothing to flush to: signed out or no
	// remote configured.
	Skipped bool `json:"skipped,omitempty"`
}

// EventType names an engine event.
type EventType string

const (
	EventStatus         EventType = "status"
	EventFlushComplete  EventType = "flush_complete"
	EventLevelUp        EventType = "level_up"
	EventStorageWarning EventType = "storage_warning"
)

// Event is delivered to subscribers. Only the field matching Type is set.
type Event struct {
	Type    EventType             `json:"type"`
	Time    time.Time             `json:"time"`
	Status  *Status               `json:"status,omitempty"`
	Flush   *FlushResult          `json:"flush,omitempty"`
	Level   int                   `json:"level,omitempty"`
	Warning *store.StorageWarning `json:"warning,omitempty"`
}

// Subscribe registers for engine events. Events are dropped for
// subscribers whose buffer is full. The returned function unsubscribes and
// closes the channel.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	if e.subs == nil {
		e.subs = make(map[int]chan Event)
	}
	e.subs[id] = ch
	e.subMu.Unlock()

	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
}

func (e *Engine) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = e.cfg.Now()
	}
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (e *Engine) publishStatus() {
	st := e.Status()
	e.publish(Event{Type: EventStatus, Status: &st})
}

func (e *Engine) closeSubscribers() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}
