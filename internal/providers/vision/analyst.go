// Package vision provides the multimodal text-completion providers that back
// the analysis agents: Gemini and OpenAI chat endpoints that accept images
// alongside a prompt and return plain or JSON text.
package vision

import "context"

// Image is raw picture bytes plus their MIME type, attached to a completion.
type Image struct {
	MimeType string
	Data     []byte
}

// CompletionRequest is one prompt to an analyst model.
type CompletionRequest struct {
	System      string
	Prompt      string
	Images      []Image
	Temperature float64
	MaxTokens   int
	// JSONResponse asks the model to return a JSON document.
	JSONResponse bool
}

// Analyst is a text-completion model that can look at images.
type Analyst interface {
	// Complete returns the model's text for the request.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name identifies the provider for logs and agent messages.
	Name() string
}
