package models

import "time"

// BatchMeta describes one comment batch file in the inbox.
type BatchMeta struct {
	Name      string    `json:"name"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
