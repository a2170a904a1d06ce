package models

import "time"

// Attachment describes an uploaded file. Key is the opaque reference
// tickets and comments store.
type Attachment struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Extension   string    `json:"extension"`
	Size        int64     `json:"size"`
	UploadedBy  int       `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}
