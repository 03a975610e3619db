package model

import "time"

// Mapping links a Notion page to a Google task and records when each side
// was last synchronized.
type Mapping struct {
	NotionID       string    `json:"notion_id"`
	GoogleID       string    `json:"google_id"`
	NotionSyncedAt time.Time `json:"notion_synced_at"`
	GoogleSyncedAt time.Time `json:"google_synced_at"`
}

// ID returns the id of the task on the given side.
func (m Mapping) ID(side Side) string {
	if side == SideNotion {
		return m.NotionID
	}
	return m.GoogleID
}

// SetID sets the id of the task on the given side.
func (m *Mapping) SetID(side Side, id string) {
	if side == SideNotion {
		m.NotionID = id
		return
	}
	m.GoogleID = id
}

// SyncedAt returns the last recorded sync time for the given side.
func (m Mapping) SyncedAt(side Side) time.Time {
	if side == SideNotion {
		return m.NotionSyncedAt
	}
	return m.GoogleSyncedAt
}

// SetSyncedAt records the last sync time for the given side.
func (m *Mapping) SetSyncedAt(side Side, t time.Time) {
	if side == SideNotion {
		m.NotionSyncedAt = t
		return
	}
	m.GoogleSyncedAt = t
}

// NewMapping links originID on origin with oppositeID on the other side.
func NewMapping(origin Side, originID, oppositeID string) Mapping {
	var m Mapping
	m.SetID(origin, originID)
	m.SetID(origin.Other(), oppositeID)
	return m
}
