// Package ai abstracts the generative model used for document
// extraction and pairwise product scoring.
package ai

import "context"

// Media is an optional binary part sent alongside the prompt, for
// documents the model reads natively (images, PDFs).
type Media struct {
	MIMEType string
	Data     []byte
}

// Generator produces a text completion for a prompt plus optional
// media, returning the raw text and the total token count billed.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, media *Media) (string, int, error)
}
