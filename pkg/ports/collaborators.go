package ports

import (
	"context"

	"github.com/mediaforge/sessiond/pkg/domain"
)

// AssetRequest describes one generation call to an external backend.
type AssetRequest struct {
	Operation  string
	Model      string
	Parameters map[string]any
}

// AssetRef points at a generated asset.
type AssetRef struct {
	ID   string `json:"id" mapstructure:"id"`
	URL  string `json:"url,omitempty" mapstructure:"url"`
	Kind string `json:"kind,omitempty" mapstructure:"kind"`
}

// Generator produces assets from a request. The coordination layer only
// records the outcome into session context; it never calls generation
// backends itself.
type Generator interface {
	Generate(ctx context.Context, req AssetRequest) (AssetRef, error)
}

// UploadResult describes where an asset landed.
type UploadResult struct {
	Location string
	Size     int64
}

// Uploader moves a generated asset to durable storage.
type Uploader interface {
	Upload(ctx context.Context, destination string, asset AssetRef) (UploadResult, error)
}

// Rules is the workflow policy engine. All queries are pure and
// side-effect-free; the session store persists whatever state it is told
// and leaves legality checks to this collaborator.
type Rules interface {
	ValidateTransition(current, target domain.State, context map[string]any) bool
	WorkflowProgress(state domain.State) float64
	NextStep(state domain.State, context map[string]any) string
}
