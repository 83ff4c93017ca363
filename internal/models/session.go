package models

import "time"

// SyncSettings gate which navigation events are broadcast to session viewers.
type SyncSettings struct {
	SyncScroll    bool `json:"sync_scroll"`
	SyncPage      bool `json:"sync_page"`
	SyncHighlight bool `json:"sync_highlight"`
}

// DefaultSyncSettings returns the settings applied when a session is created
// without explicit settings.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{SyncScroll: true, SyncPage: true, SyncHighlight: true}
}

// SyncSettingsPatch is a partial update to SyncSettings; nil fields are left
// unchanged.
type SyncSettingsPatch struct {
	SyncScroll    *bool `json:"sync_scroll,omitempty"`
	SyncPage      *bool `json:"sync_page,omitempty"`
	SyncHighlight *bool `json:"sync_highlight,omitempty"`
}

// Session represents one live collaborative document-viewing context.
type Session struct {
	ID             string       `json:"id"`
	DocumentID     string       `json:"document_id"`
	CampaignID     string       `json:"campaign_id"`
	RoomCode       string       `json:"room_code"`
	PresenterID    string       `json:"presenter_id"`
	Viewers        []string     `json:"viewers"`
	CurrentPage    int          `json:"current_page"`
	ScrollPosition float64      `json:"scroll_position"`
	Highlights     []string     `json:"highlights"`
	Settings       SyncSettings `json:"settings"`
	StartedAt      time.Time    `json:"started_at"`
	LastActivity   time.Time    `json:"last_activity"`
}

// HasViewer reports whether the given user is in the viewer set.
func (s *Session) HasViewer(userID string) bool {
	for _, v := range s.Viewers {
		if v == userID {
			return true
		}
	}
	return false
}
