package model

import "time"

// SessionExport is the export-ready form of one session, produced by the
// export subcommand and the export endpoint.
type SessionExport struct {
	SessionID  string          `json:"session_id"`
	ExportedAt time.Time       `json:"exported_at"`
	Metadata   SessionMetadata `json:"metadata"`
	State      SessionState    `json:"state"`
}

// InterviewExport wraps all exported sessions with run-level metadata.
type InterviewExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Sessions   []SessionExport `json:"sessions"`
}
