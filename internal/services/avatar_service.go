package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/mpslytherin/accounts/internal/models"
	"github.com/mpslytherin/accounts/internal/storage"
)

// AvatarURLPrefix is the public path avatars are served from
const AvatarURLPrefix = "/avatars/"

// DefaultAvatarMaxBytes is 2 MiB
const DefaultAvatarMaxBytes int64 = 2 << 20

var allowedAvatarTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// AvatarService validates and stores avatar images
type AvatarService struct {
	store    storage.Storage
	maxBytes int64
	logger   *slog.Logger
}

func NewAvatarService(store storage.Storage, maxBytes int64, logger *slog.Logger) *AvatarService {
	if maxBytes <= 0 {
		maxBytes = DefaultAvatarMaxBytes
	}
	return &AvatarService{
		store:    store,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// MaxBytes returns the largest accepted image size
func (s *AvatarService) MaxBytes() int64 {
	return s.maxBytes
}

// Save sniffs the image type and stores it under a random key, returning the public URL.
func (s *AvatarService) Save(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: avatar is empty", models.ErrBadRequest)
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: avatar exceeds %d bytes", models.ErrPayloadTooLarge, s.maxBytes)
	}

	mtype := mimetype.Detect(data)
	if !isAllowedAvatarType(mtype) {
		return "", fmt.Errorf("%w: %s", models.ErrUnsupportedMedia, mtype.String())
	}

	key := uuid.NewString() + mtype.Extension()
	err := s.store.Upload(ctx, &storage.Object{
		Key:         key,
		ContentType: mtype.String(),
		Size:        int64(len(data)),
		Reader:      bytes.NewReader(data),
	})
	if err != nil {
		s.logger.Error("failed to store avatar", slog.String("key", key), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	return AvatarURLPrefix + key, nil
}

// Remove deletes a previously stored avatar. Errors are logged only.
func (s *AvatarService) Remove(ctx context.Context, avatarURL string) {
	key, ok := strings.CutPrefix(avatarURL, AvatarURLPrefix)
	if !ok || key == "" {
		return
	}

	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete avatar", slog.String("key", key), slog.Any("error", err))
	}
}

// Open returns a reader for a stored avatar. The caller closes it.
func (s *AvatarService) Open(ctx context.Context, key string) (*storage.DownloadResult, error) {
	res, err := s.store.Download(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to open avatar", slog.String("key", key), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return res, nil
}

func isAllowedAvatarType(mtype *mimetype.MIME) bool {
	for _, allowed := range allowedAvatarTypes {
		if mtype.Is(allowed) {
			return true
		}
	}
	return false
}

// DecodeAvatarBase64 accepts plain base64 (padded or not) or a data URL.
func DecodeAvatarBase64(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)

	if rest, ok := strings.CutPrefix(encoded, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, fmt.Errorf("%w: malformed data URL", models.ErrBadRequest)
		}
		encoded = payload
	}

	encoded = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, encoded)

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: avatar is not valid base64", models.ErrBadRequest)
		}
	}
	return data, nil
}
