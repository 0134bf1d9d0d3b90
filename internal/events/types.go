// Package events provides the pub/sub bus that carries session and cache
// notifications between the core and whatever UI is driving it.
package events

import "time"

// EventType identifies the category of event.
type EventType string

// Event types published by the core.
const (
	// Session events
	EventSessionLogin       EventType = "session.login"
	EventSessionLogout      EventType = "session.logout"
	EventSessionInvalidated EventType = "session.invalidated" // 401 or token expiry
	EventSessionUser        EventType = "session.user"

	// Cache events
	EventCacheInvalidated EventType = "cache.invalidated"

	// Resource mutations
	EventResourceCreated EventType = "resource.created"
	EventResourceUpdated EventType = "resource.updated"
	EventResourceDeleted EventType = "resource.deleted"

	// Navigation
	EventNavigate EventType = "nav.navigate"
)

// Event is the core message passed through the event bus.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "session", "client", "cache", "resource", "authz"
	Data      any       `json:"data"`
}

// SessionData is the payload for session events.
type SessionData struct {
	Username string `json:"username,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// CacheData is the payload for EventCacheInvalidated.
type CacheData struct {
	Resource string `json:"resource"`
	Entries  int    `json:"entries"`
}

// ResourceData is the payload for resource mutation events.
type ResourceData struct {
	Resource string `json:"resource"`
	ID       string `json:"id"`
}

// NavigateData is the payload for EventNavigate.
type NavigateData struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
}
