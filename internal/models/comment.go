package models

import (
	"database/sql"
	"time"
)

// Comment is a message on a ticket's thread. Internal comments are only
// visible to actors holding the comment_internal capability.
type Comment struct {
	ID            int            `json:"id"`
	FeedbackID    int            `json:"feedback_id"`
	AuthorID      int            `json:"author_id"`
	Body          string         `json:"body"`
	IsInternal    bool           `json:"is_internal"`
	AttachmentKey sql.NullString `json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
}
