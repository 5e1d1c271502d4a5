package policies

import "context"

// ImageResolver turns an opaque image reference into a display URL.
type ImageResolver interface {
	ResolveImage(ctx context.Context, ref string) (string, error)
}
