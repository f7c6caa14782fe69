package orchestrator

import (
	"context"
	"fmt"
)

// EnsureImageAvailable fails unless some local image carries exactly the
// tag ref. It never pulls.
func (o *Orchestrator) EnsureImageAvailable(ctx context.Context, ref string) error {
	images, err := o.runtime.Images(ctx)
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}
	if len(images) == 0 {
		return ErrImageCatalogEmpty
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == ref {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s", ErrImageNotFound, ref)
}
