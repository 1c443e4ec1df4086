package models

import "time"

// Comment represents a reply to an original post.
type Comment struct {
	User      string    `json:"user"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
