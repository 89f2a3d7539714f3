package types

import "encoding/json"

// Record is one normalized document ready for a sink.
type Record struct {
	// ID is the store identifier of the hit the record came from.
	ID string
	// Index is the index the hit came from.
	Index string
	// Body is the encoded JSON object: the full hit or only its fields.
	Body json.RawMessage
}

// EmptyBody is emitted when a hit normalizes to nothing.
var EmptyBody = json.RawMessage(`{}`)
