package types

import "github.com/google/uuid"

// Receipt summarises the outcome of a guarded ledger operation. A failed
// receipt guarantees no state change was committed.
type Receipt struct {
	Ref     string   `json:"ref"`
	Op      string   `json:"op"`
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Events  []*Event `json:"events"`
}

// NewReceipt allocates a receipt for the named operation with a fresh
// reference identifier.
func NewReceipt(op string) *Receipt {
	return &Receipt{Ref: uuid.NewString(), Op: op, Events: []*Event{}}
}
