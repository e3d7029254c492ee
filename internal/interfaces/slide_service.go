package interfaces

import (
	"context"
	"io"

	"github.com/bamtlabs/wsiflow/internal/models"
)

// SlideService manages uploaded slide blobs and their metadata. The blob
// itself lives on the filesystem; only metadata enters the state store.
type SlideService interface {
	// SaveUpload stores the blob under the uploads dir and records metadata
	SaveUpload(ctx context.Context, userID, filename string, content io.Reader) (*models.Slide, error)

	// Get returns slide metadata, or nil without error when absent
	Get(ctx context.Context, slideID string) (*models.Slide, error)

	ListByUser(ctx context.Context, userID string) ([]*models.Slide, error)

	// Delete removes metadata and the blob; returns false when absent
	Delete(ctx context.Context, slideID string) (bool, error)
}
