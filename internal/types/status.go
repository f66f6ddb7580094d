package types

// Status is the lifecycle status of a persisted record. Archived records are
// kept for history and excluded from listings.
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)
