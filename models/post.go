package models

import "time"

// Post is an original post or a rewin of one. A rewin copies the original title, content and author
// and points back at it through Original.
type Post struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	Author           string    `json:"author"`
	Timestamp        time.Time `json:"timestamp"`
	RewardIterations int       `json:"rewardIterations"`
	Rewin            bool      `json:"rewin"`
	Rewinner         string    `json:"rewinner,omitempty"`
	Original         int64     `json:"original,omitempty"`
}

// Owner is the user whose blog carries the post.
func (p *Post) Owner() string {
	if p.Rewin {
		return p.Rewinner
	}
	return p.Author
}

// OriginalID resolves a rewin to the post it reshares.
func (p *Post) OriginalID() int64 {
	if p.Rewin {
		return p.Original
	}
	return p.ID
}

// PostSummary is one entry of a blog or feed listing.
type PostSummary struct {
	ID       int64  `json:"id"`
	Author   string `json:"author"`
	Title    string `json:"title"`
	Rewinner string `json:"rewinner,omitempty"`
}

// Summary builds the listing entry for p.
func (p *Post) Summary() PostSummary {
	return PostSummary{ID: p.ID, Author: p.Author, Title: p.Title, Rewinner: p.Rewinner}
}

// Vote is a +1/-1 rating. At most one per (post, user).
type Vote struct {
	User      string    `json:"user"`
	Value     int       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}
