package llm

import (
	"context"
	"strings"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Message struct {
	Role Role
	Text string
}

// Blob is inline binary input (documents, images) for multimodal extraction.
type Blob struct {
	MIMEType string
	Data     []byte
}

type Request struct {
	System  string
	History []Message
	Prompt  string
	Blobs   []Blob

	// JSON asks the model for an application/json response.
	JSON        bool
	Temperature *float32
}

type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
	// StreamAnswer returns a stream of text chunks (incremental).
	StreamAnswer(ctx context.Context, req Request) (chunks <-chan string, errs <-chan error)
	Model() string
	Close() error
}

// CleanJSON strips markdown fences models sometimes wrap JSON in.
func CleanJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```JSON")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}
