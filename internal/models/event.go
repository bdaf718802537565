package models

import "time"

// Event type and status values as stored.
const (
	EventTypeLogin  = "login"
	EventTypeLogout = "logout"

	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Event is one normalized SSH login/logout record.
// Rows are immutable: inserted once by the ingestion path, never updated or deleted.
type Event struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"event_type"`
	Username   string    `json:"username"`
	Hostname   string    `json:"hostname,omitempty"`
	IPAddress  string    `json:"ip_address"`
	Status     string    `json:"status"`
	AuthMethod string    `json:"auth_method,omitempty"`
	RawMessage string    `json:"raw_message"`
	CreatedAt  time.Time `json:"created_at"`
}

// VectorRecord is the raw payload produced by the Vector log shipper for one
// parsed sshd log line.
type VectorRecord struct {
	TS         string `json:"ts"`
	Hostname   string `json:"hostname"`
	Process    string `json:"process"`
	Content    string `json:"content"`
	EventType  string `json:"event_type"`
	Status     string `json:"status"`
	Username   string `json:"username"`
	SourceUser string `json:"source_user"`
	IPAddress  string `json:"ip_address"`
	AuthMethod string `json:"auth_method,omitempty"`
}
