package model

import "time"

// Submission is an inbound contact event waiting on the ingestion stream.
type Submission struct {
	SubmissionID string               `json:"submission_id"`
	ReceivedAt   time.Time            `json:"received_at"`
	Message      MessageCreateRequest `json:"message"`
}
