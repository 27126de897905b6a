// Package avatar decides default avatars and applies the replacement policy
// for uploaded ones: only jpg/png are accepted, the file is stored as
// {userID}.{ext}, any prior avatar with another extension is removed and the
// image is resized before the new URL is persisted.
package avatar

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/userauth/userauth/internal/apperr"
	"github.com/userauth/userauth/internal/identity"
)

const loadFileError = "Load file error"

// Service replaces user avatars.
type Service struct {
	store   identity.Store
	storage Storage
	resizer Resizer
	logger  *slog.Logger
}

// NewService wires the avatar policy to its collaborators.
func NewService(store identity.Store, storage Storage, resizer Resizer, logger *slog.Logger) *Service {
	return &Service{store: store, storage: storage, resizer: resizer, logger: logger}
}

// Change installs the uploaded temp file as userID's avatar and returns its
// URL. The temp file never survives the call.
func (s *Service) Change(ctx context.Context, tempPath, userID string) (string, error) {
	if tempPath == "" {
		return "", apperr.Validation("transfer file, please")
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(tempPath), "."))
	if ext != "jpg" && ext != "png" {
		s.discard(tempPath)
		return "", apperr.Validation("file must be '.jpg' or '.png'")
	}

	url, err := s.replace(ctx, tempPath, userID, ext)
	if err != nil {
		s.discard(tempPath)
		if s.logger != nil {
			s.logger.Warn("avatar replace failed", slog.String("user_id", userID), slog.Any("error", err))
		}
		return "", apperr.Wrap(apperr.KindValidation, loadFileError, err)
	}
	return url, nil
}

func (s *Service) replace(ctx context.Context, tempPath, userID, ext string) (string, error) {
	name := userID + "." + ext

	prior, err := s.storage.Find(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("scan avatars: %w", err)
	}

	if err := s.resizer.Resize(tempPath); err != nil {
		return "", err
	}
	if err := s.storage.Save(ctx, tempPath, name); err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}

	// A same-extension avatar was overwritten by Save.
	for _, old := range prior {
		if old == name {
			continue
		}
		if err := s.storage.Remove(ctx, old); err != nil {
			return "", fmt.Errorf("remove previous avatar %s: %w", old, err)
		}
	}

	url := s.storage.URL(name)
	if _, err := s.store.UpdateFields(ctx, userID, identity.Update{AvatarURL: identity.Ptr(url)}); err != nil {
		return "", fmt.Errorf("persist avatar url: %w", err)
	}
	return url, nil
}

func (s *Service) discard(tempPath string) {
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) && s.logger != nil {
		s.logger.Warn("remove temp upload", slog.String("path", tempPath), slog.Any("error", err))
	}
}
