package models

import "encoding/json"

// EventType tags every message on the realtime wire. Inbound types outside
// this set are rejected with a scoped error event.
type EventType string

// Inbound event types
const (
	EventSessionCreate         EventType = "session-create"
	EventSessionJoin           EventType = "session-join"
	EventSessionLeave          EventType = "session-leave"
	EventSessionUpdateSettings EventType = "session-update-settings"
	EventPageChange            EventType = "page-change"
	EventScrollSync            EventType = "scroll-sync"
	EventPushPage              EventType = "push-page"
	EventPushReference         EventType = "push-reference"
	EventAnnotationCreate      EventType = "annotation-create"
	EventAnnotationUpdate      EventType = "annotation-update"
	EventAnnotationDelete      EventType = "annotation-delete"
)

// Outbound event types mirror inbound ones with result naming.
const (
	EventSessionCreated    EventType = "session-created"
	EventSessionJoined     EventType = "session-joined"
	EventSessionLeft       EventType = "session-left"
	EventSettingsUpdated   EventType = "settings-updated"
	EventPageChanged       EventType = "page-changed"
	EventScrollSynced      EventType = "scroll-synced"
	EventPagePushed        EventType = "page-pushed"
	EventReferencePushed   EventType = "reference-pushed"
	EventAnnotationCreated EventType = "annotation-created"
	EventAnnotationUpdated EventType = "annotation-updated"
	EventAnnotationDeleted EventType = "annotation-deleted"
	EventError             EventType = "error"
)

// Envelope is the wire format for every realtime message.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an Envelope. Marshal failures are a
// programming error on outbound payloads and surface as an empty data field.
func NewEnvelope(t EventType, data interface{}) Envelope {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{Type: t}
	}
	return Envelope{Type: t, Data: raw}
}

// SessionCreatePayload starts a new collaboration session.
type SessionCreatePayload struct {
	DocumentID string             `json:"document_id" binding:"required"`
	CampaignID string             `json:"campaign_id"`
	RoomCode   string             `json:"room_code"`
	Settings   *SyncSettingsPatch `json:"settings,omitempty"`
}

// SessionJoinPayload attaches the connection to an existing session.
type SessionJoinPayload struct {
	SessionID string `json:"session_id" binding:"required"`
}

// SettingsUpdatePayload partially updates a session's sync settings.
type SettingsUpdatePayload struct {
	Settings SyncSettingsPatch `json:"settings"`
}

// PageChangePayload reports a viewer navigating to a page.
type PageChangePayload struct {
	Page int `json:"page" binding:"required,min=1"`
}

// ScrollSyncPayload reports a viewer's scroll position.
type ScrollSyncPayload struct {
	Position float64 `json:"position"`
}

// PushReferencePayload is a presenter pushing a reference to all viewers.
type PushReferencePayload struct {
	DocumentID string `json:"document_id" binding:"required"`
	Page       int    `json:"page"`
	Label      string `json:"label,omitempty"`
}

// AnnotationPayload carries annotation mutations.
type AnnotationPayload struct {
	Annotation Annotation `json:"annotation"`
}

// AnnotationDeletePayload identifies the annotation to remove.
type AnnotationDeletePayload struct {
	AnnotationID string `json:"annotation_id" binding:"required"`
}

// ErrorPayload is sent only to the connection that caused the error.
type ErrorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
