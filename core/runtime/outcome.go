package runtime

import (
	"encoding/json"
	"errors"

	"treekv/core/types"
	"treekv/native/collections"
	"treekv/native/common"
	"treekv/storage/treemap"
)

var (
	ErrUnknownMethod = errors.New("runtime: unknown method")
	ErrInvalidArgs   = errors.New("runtime: invalid arguments")
)

// Status is the outcome class of a call.
type Status string

const (
	StatusOK       Status = "ok"
	StatusNotFound Status = "not_found"
	StatusCorrupt  Status = "corrupt"
	StatusInvalid  Status = "invalid"
	StatusPaused   Status = "paused"
	StatusFailed   Status = "failed"
)

// Outcome is what the caller of a call observes. Only calls with StatusOK
// leave writes behind.
type Outcome struct {
	CallID  string          `json:"call_id"`
	Method  string          `json:"method"`
	Caller  string          `json:"caller"`
	Status  Status          `json:"status"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Events  []*types.Event  `json:"events,omitempty"`
	Writes  int             `json:"writes"`
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool { return o.Status == StatusOK }

func classify(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, collections.ErrNumberNotFound), errors.Is(err, collections.ErrOwnerNotFound):
		return StatusNotFound
	case errors.Is(err, treemap.ErrCorrupt):
		return StatusCorrupt
	case errors.Is(err, ErrUnknownMethod),
		errors.Is(err, ErrInvalidArgs),
		errors.Is(err, types.ErrInvalidAccountID),
		errors.Is(err, types.ErrU128Overflow),
		errors.Is(err, collections.ErrNotInitialized),
		errors.Is(err, collections.ErrAlreadyInitialized):
		return StatusInvalid
	case errors.Is(err, common.ErrModulePaused):
		return StatusPaused
	default:
		return StatusFailed
	}
}
