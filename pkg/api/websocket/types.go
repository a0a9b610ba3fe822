package websocket

import (
	"encoding/json"
)

// EventType is the kind of search event pushed to clients
type EventType string

const (
	// EventProgress is sent after every narrowing step of a search
	EventProgress EventType = "progress"

	// EventDone is sent once when a search reaches a terminal state
	EventDone EventType = "done"
)

// AllSearches subscribes a client to every search
const AllSearches = "*"

// Message is the envelope of every frame in both directions
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribeRequest subscribes to the events of one search, or of all searches with "*"
type SubscribeRequest struct {
	ID string `json:"id"`
}

// UnsubscribeRequest removes a subscription
type UnsubscribeRequest struct {
	ID string `json:"id"`
}

// Event is a search event
type Event struct {
	Type EventType   `json:"type"`
	ID   string      `json:"id"`
	Data interface{} `json:"data"`
}

// ErrorMessage represents an error message
type ErrorMessage struct {
	Error string `json:"error"`
}

// SuccessMessage represents a success message
type SuccessMessage struct {
	Message string `json:"message"`
}
