// Package session defines the durable identity of an agent session.
package session

import "time"

// Info identifies one session and the workspace it operates on.
type Info struct {
	ID            string    `json:"id"`
	WorkspaceRoot string    `json:"workspaceRoot"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	CreatedAt     time.Time `json:"createdAt"`
}

// IndexRecord is one line of the sessions index file, written on every
// create and resume.
type IndexRecord struct {
	SessionID string    `json:"sessionId"`
	Action    string    `json:"action"` // "create" | "resume"
	Workspace string    `json:"workspace"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
}
