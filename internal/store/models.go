package store

import "time"

// Feedback moderation statuses. Submitted is the initial state; approved and
// rejected are terminal.
const (
	StatusSubmitted = "submitted"
	StatusReviewed  = "reviewed"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FeedbackItem is the durable record owning the moderation lifecycle.
// AuthorID is nil for anonymous submissions. The transition timestamps are
// set once, the first time the matching transition fires, and are kept as
// history afterwards; Status always reflects the latest transition applied.
type FeedbackItem struct {
	ID                  string     `json:"id"`
	AuthorID            *string    `json:"authorId"`
	Text                string     `json:"text"`
	Status              string     `json:"status"`
	IsAssistanceRequest bool       `json:"isAssistanceRequest"`
	SubmittedAt         time.Time  `json:"submittedAt"`
	ReviewedAt          *time.Time `json:"reviewedAt"`
	ApprovedAt          *time.Time `json:"approvedAt"`
	RejectedAt          *time.Time `json:"rejectedAt"`
}
