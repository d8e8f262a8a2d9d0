package queue

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/pixeltennis/pixeltennis/internal/remote"
	"github.com/pixeltennis/pixeltennis/internal/schema"
)

// OpType is the kind of remote mutation an operation stands for.
type OpType string

const (
	InsertLog     OpType = "INSERT_LOG"
	UpdateLog     OpType = "UPDATE_LOG"
	DeleteLog     OpType = "DELETE_LOG"
	UpdateProfile OpType = "UPDATE_PROFILE"
)

// Valid reports whether t is a known operation type.
func (t OpType) Valid() bool {
	switch t {
	case InsertLog, UpdateLog, DeleteLog, UpdateProfile:
		return true
	}
	return false
}

// Op is one queued mutation. Data holds the payload for Type:
//   - INSERT_LOG, UPDATE_LOG: the log in its local JSON shape
//   - DELETE_LOG: {"id": ...}
//   - UPDATE_PROFILE: a remote.ProfilePatch
type Op struct {
	Type OpType          `json:"type"`
	Data json.RawMessage `json:"data"`
	// Timestamp is the enqueue time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

type deletePayload struct {
	ID string `json:"id"`
}

// NewLogOp builds an INSERT_LOG or UPDATE_LOG operation.
func NewLogOp(t OpType, l schema.TrainingLog) (Op, error) {
	if t != InsertLog && t != UpdateLog {
		return Op{}, fmt.Errorf("%s is not a log upsert", t)
	}
	if l.ID == "" {
		return Op{}, fmt.Errorf("log id is required")
	}
	data, err := json.Marshal(l)
	if err != nil {
		return Op{}, fmt.Errorf("failed to encode log %s: %w", l.ID, err)
	}
	return Op{Type: t, Data: data}, nil
}

// NewDeleteOp builds a DELETE_LOG operation.
func NewDeleteOp(id string) (Op, error) {
	if id == "" {
		return Op{}, fmt.Errorf("log id is required")
	}
	data, err := json.Marshal(deletePayload{ID: id})
	if err != nil {
		return Op{}, err
	}
	return Op{Type: DeleteLog, Data: data}, nil
}

// NewProfileOp builds an UPDATE_PROFILE operation.
func NewProfileOp(patch remote.ProfilePatch) (Op, error) {
	data, err := json.Marshal(patch)
	if err != nil {
		return Op{}, fmt.Errorf("failed to encode profile patch: %w", err)
	}
	return Op{Type: UpdateProfile, Data: data}, nil
}

// Log decodes the payload of a log upsert.
func (o Op) Log() (schema.TrainingLog, error) {
	if o.Type != InsertLog && o.Type != UpdateLog {
		return schema.TrainingLog{}, fmt.Errorf("%s carries no log", o.Type)
	}
	var l schema.TrainingLog
	if err := json.Unmarshal(o.Data, &l); err != nil {
		return schema.TrainingLog{}, fmt.Errorf("failed to decode %s payload: %w", o.Type, err)
	}
	return l, nil
}

// DeleteID decodes the id of a DELETE_LOG operation.
func (o Op) DeleteID() (string, error) {
	if o.Type != DeleteLog {
		return "", fmt.Errorf("%s carries no delete id", o.Type)
	}
	var p deletePayload
	if err := json.Unmarshal(o.Data, &p); err != nil {
		return "", fmt.Errorf("failed to decode %s payload: %w", o.Type, err)
	}
	if p.ID == "" {
		return "", fmt.Errorf("%s payload has no id", o.Type)
	}
	return p.ID, nil
}

// ProfilePatch decodes the payload of an UPDATE_PROFILE operation.
func (o Op) ProfilePatch() (remote.ProfilePatch, error) {
	if o.Type != UpdateProfile {
		return remote.ProfilePatch{}, fmt.Errorf("%s carries no profile patch", o.Type)
	}
	var p remote.ProfilePatch
	if err := json.Unmarshal(o.Data, &p); err != nil {
		return remote.ProfilePatch{}, fmt.Errorf("failed to decode %s payload: %w", o.Type, err)
	}
	return p, nil
}

// Key identifies a log the operation touches, for logging. Profile updates
// return "profile".
func (o Op) Key() string {
	switch o.Type {
	case DeleteLog:
		id, _ := o.DeleteID()
		return id
	case InsertLog, UpdateLog:
		var p deletePayload
		_ = json.Unmarshal(o.Data, &p)
		return p.ID
	}
	return "profile"
}

func (o Op) same(other Op) bool {
	return o.Type == other.Type && o.Timestamp == other.Timestamp && bytes.Equal(o.Data, other.Data)
}
