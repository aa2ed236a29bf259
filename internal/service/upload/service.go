// Package upload publishes editor media to durable object storage.
package upload

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/smartclips-editor/internal/domain"
	"github.com/smartclips-editor/internal/media"
	"github.com/smartclips-editor/pkg/logger"
)

// ObjectStore is the storage the publisher writes to. *s3.Client satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	GetPresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Service publishes media references
type Service struct {
	store  ObjectStore
	expiry time.Duration
	log    *logger.Logger
}

// NewService creates a new upload service. A nil store disables publishing.
func NewService(store ObjectStore, expiry time.Duration, log *logger.Logger) *Service {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Service{
		store:  store,
		expiry: expiry,
		log:    log.WithComponent("upload"),
	}
}

// PublishResponse contains the durable location of published media
type PublishResponse struct {
	URL string `json:"url"`
	Key string `json:"key,omitempty"`
	// Uploaded is false when the media was already remote
	Uploaded  bool      `json:"uploaded"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Publish uploads the bytes of a local reference and returns a presigned
// download URL. Remote references are already addressable and are returned
// as they are.
func (s *Service) Publish(ctx context.Context, sessionID string, ref *media.Reference) (*PublishResponse, error) {
	if !ref.IsLocal() {
		url, err := ref.PlaybackURL()
		if err != nil {
			return nil, err
		}
		return &PublishResponse{URL: url}, nil
	}

	if s.store == nil {
		return nil, domain.ErrPublishNotEnabled
	}

	body, err := ref.Open()
	if err != nil {
		return nil, err
	}
	defer body.Close()

	key := fmt.Sprintf("published/%s/%s%s", sessionID, uuid.NewString(), filepath.Ext(ref.Name()))

	if err := s.store.Upload(ctx, key, body, media.DetectContentType(ref.Name())); err != nil {
		s.log.Errorw("failed to upload to S3", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("publish failed: %w", err)
	}

	url, err := s.store.GetPresignedDownloadURL(ctx, key, s.expiry)
	if err != nil {
		// Nobody can reach the object without a URL; do not leave it behind
		if delErr := s.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.log.Errorw("failed to delete unpublished object", "error", delErr, "key", key)
		}
		return nil, fmt.Errorf("failed to generate download URL: %w", err)
	}

	s.log.Infow("media published", "session_id", sessionID, "key", key)

	return &PublishResponse{
		URL:       url,
		Key:       key,
		Uploaded:  true,
		ExpiresAt: time.Now().Add(s.expiry).UTC(),
	}, nil
}
