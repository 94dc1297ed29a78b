package client

import "context"

// VisionClient sends one image and a prompt to a vision model and returns
// the model's raw text reply.
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
}
