package status

import (
	"context"
	"time"

	json "github.com/goccy/go-json"

	"github.com/pixeltennis/pixeltennis/internal/syncengine"
)

// Publish records ev in the metrics and broadcasts it.
func (s *Server) Publish(ev syncengine.Event) {
	s.metrics.observe(ev)

	var (
		msg Message
		err error
	)
	switch ev.Type {
	case syncengine.EventStatus:
		if ev.Status == nil {
			return
		}
		msg, err = s.statusMessage(*ev.Status, ev.Time)
	case syncengine.EventFlushComplete:
		msg, err = newMessage(MessageTypeFlushComplete, ev.Time, ev.Flush)
	case syncengine.EventLevelUp:
		data := LevelUpData{Level: ev.Level}
		if s.levelTitle != nil {
			data.Title = s.levelTitle(ev.Level)
		}
		msg, err = newMessage(MessageTypeLevelUp, ev.Time, data)
	case syncengine.EventStorageWarning:
		msg, err = newMessage(MessageTypeStorageWarning, ev.Time, ev.Warning)
	default:
		return
	}
	if err != nil {
		s.logger.Error("status_marshal_failed", "type", ev.Type, "err", err)
		return
	}
	s.Broadcast(msg)
}

// Forward publishes events from ch until it closes or ctx is done.
func (s *Server) Forward(ctx context.Context, ch <-chan syncengine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.Publish(ev)
		}
	}
}

func (s *Server) statusMessage(st syncengine.Status, at time.Time) (Message, error) {
	s.metrics.observeStatus(st)
	return newMessage(MessageTypeStatus, at, st)
}

func newMessage(t MessageType, at time.Time, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	if at.IsZero() {
		at = time.Now()
	}
	return Message{Type: t, Timestamp: at, Data: data}, nil
}
