package client

import "context"

// VisionClient sends an image and a prompt to a vision language model and
// returns the raw text of its reply
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
}
