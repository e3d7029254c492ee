package slides

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/common"
	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/models"
)

// Service implements interfaces.SlideService. Blobs live under the uploads
// directory; only metadata enters the state store.
type Service struct {
	store      interfaces.StateStore
	uploadsDir string
	logger     arbor.ILogger
}

// NewService creates a new slide service
func NewService(store interfaces.StateStore, uploadsDir string, logger arbor.ILogger) *Service {
	return &Service{
		store:      store,
		uploadsDir: uploadsDir,
		logger:     logger,
	}
}

// SaveUpload streams the blob to disk and records slide metadata
func (s *Service) SaveUpload(ctx context.Context, userID, filename string, content io.Reader) (*models.Slide, error) {
	slideID := common.NewSlideID()

	if err := os.MkdirAll(s.uploadsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}

	// Keep the original extension, namespace the file by slide id
	slidePath := filepath.Join(s.uploadsDir, slideID+"_"+filepath.Base(filename))
	f, err := os.Create(slidePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create slide file: %w", err)
	}
	size, err := io.Copy(f, content)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(slidePath)
		return nil, fmt.Errorf("failed to write slide file: %w", err)
	}

	slide := &models.Slide{
		SlideID:   slideID,
		UserID:    userID,
		SlidePath: slidePath,
		SizeBytes: size,
	}

	if err := s.store.HSet(ctx, models.SlideKey(slideID), slide.Fields()); err != nil {
		os.Remove(slidePath)
		return nil, fmt.Errorf("failed to store slide metadata: %w", err)
	}
	if err := s.store.SAdd(ctx, models.UserSlidesKey(userID), slideID); err != nil {
		return nil, fmt.Errorf("failed to track slide for user %s: %w", userID, err)
	}

	s.logger.Info().
		Str("slide_id", slideID).
		Str("user_id", userID).
		Int("size_bytes", int(size)).
		Msg("Slide uploaded")

	return slide, nil
}

// Get returns slide metadata, or nil when absent
func (s *Service) Get(ctx context.Context, slideID string) (*models.Slide, error) {
	fields, err := s.store.HGetAll(ctx, models.SlideKey(slideID))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return models.SlideFromFields(fields), nil
}

// ListByUser returns the slides a user owns
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*models.Slide, error) {
	ids, err := s.store.SMembers(ctx, models.UserSlidesKey(userID))
	if err != nil {
		return nil, err
	}
	result := make([]*models.Slide, 0, len(ids))
	for _, id := range ids {
		slide, err := s.Get(ctx, id)
		if err != nil || slide == nil {
			continue
		}
		result = append(result, slide)
	}
	return result, nil
}

// Delete removes metadata and the blob; false when absent
func (s *Service) Delete(ctx context.Context, slideID string) (bool, error) {
	slide, err := s.Get(ctx, slideID)
	if err != nil {
		return false, err
	}
	if slide == nil {
		return false, nil
	}

	if slide.SlidePath != "" {
		if err := os.Remove(slide.SlidePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("slide_id", slideID).Msg("Failed to remove slide blob")
		}
	}
	if err := s.store.Del(ctx, models.SlideKey(slideID)); err != nil {
		return false, err
	}
	if slide.UserID != "" {
		if err := s.store.SRem(ctx, models.UserSlidesKey(slide.UserID), slideID); err != nil {
			return false, err
		}
	}
	return true, nil
}
