package entity

import "time"

// WebFileEntry is a finished download published over HTTP because it
// exceeded the inline delivery ceiling.
type WebFileEntry struct {
	SessionID string    `json:"session_id" yaml:"session_id"`
	FilePath  string    `json:"path" yaml:"path"`
	Filename  string    `json:"filename" yaml:"filename"`
	Ext       string    `json:"ext" yaml:"ext"`
	CreatedAt time.Time `json:"created" yaml:"created"`
}

func (e *WebFileEntry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) > ttl
}
