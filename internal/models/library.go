package models

import "time"

// LibraryResource is a browsable item in the digital library.
type LibraryResource struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Author      string    `db:"author" json:"author"`
	Category    string    `db:"category" json:"category"`
	Subject     string    `db:"subject" json:"subject"`
	ClassLevel  *int      `db:"class_level" json:"class_level,omitempty"`
	ResourceURL string    `db:"resource_url" json:"resource_url"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// LibraryFilter scopes resource listings.
type LibraryFilter struct {
	Category   string
	Subject    string
	ClassLevel *int
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
