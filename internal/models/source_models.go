package models

import "time"

// RawComment is a top-level comment as returned by the comment source.
type RawComment struct {
	ID          string
	VideoID     string
	AuthorName  string
	Text        string
	PublishedAt time.Time
}

// CommentPage is one page of a video's comment stream.
type CommentPage struct {
	Comments      []RawComment
	NextPageToken string
}
