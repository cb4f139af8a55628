// Package client defines the vision-model clients used for face location.
package client

import (
	"context"

	"github.com/menta2k/idphoto/pkg/types"
)

// VisionClient is a chat model that can look at an image
type VisionClient interface {
	Ping(ctx context.Context) error
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	AnalyzeFaces(ctx context.Context, model, prompt, imgB64 string) (*types.FaceAnalysis, error)
}
