package avatar

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/userauth/userauth/internal/apperr"
	"github.com/userauth/userauth/internal/identity"
	"github.com/userauth/userauth/internal/logging"
)

type fixture struct {
	svc     *Service
	store   identity.Store
	storage *LocalStorage
	tmpDir  string
	userID  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := identity.NewMemoryRepository()
	userID := uuid.NewString()
	require.NoError(t, store.Upsert(context.Background(), identity.User{
		ID:        userID,
		Email:     "a@x.com",
		AvatarURL: DefaultURL("a@x.com"),
		CreatedAt: time.Now(),
	}))

	storage, err := NewLocalStorage(filepath.Join(t.TempDir(), "avatars"))
	require.NoError(t, err)

	return fixture{
		svc:     NewService(store, storage, NewImagingResizer(), logging.Discard()),
		store:   store,
		storage: storage,
		tmpDir:  t.TempDir(),
		userID:  userID,
	}
}

func (f fixture) upload(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(f.tmpDir, name)
	out, err := os.Create(p)
	require.NoError(t, err)
	defer out.Close()

	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	for x := 0; x < 400; x++ {
		img.Set(x, x%300, color.RGBA{R: 200, A: 255})
	}
	switch filepath.Ext(name) {
	case ".png", ".PNG":
		require.NoError(t, png.Encode(out, img))
	default:
		require.NoError(t, jpeg.Encode(out, img, nil))
	}
	return p
}

func (f fixture) storedFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.storage.Dir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestChangeStoresResizedAvatar(t *testing.T) {
	f := newFixture(t)
	tmp := f.upload(t, "photo.png")

	url, err := f.svc.Change(context.Background(), tmp, f.userID)
	require.NoError(t, err)
	require.Equal(t, "avatars/"+f.userID+".png", url)

	_, err = os.Stat(tmp)
	require.True(t, os.IsNotExist(err), "temp file must be moved")

	stored, err := os.Open(filepath.Join(f.storage.Dir(), f.userID+".png"))
	require.NoError(t, err)
	defer stored.Close()
	cfg, _, err := image.DecodeConfig(stored)
	require.NoError(t, err)
	require.Equal(t, Size, cfg.Width)
	require.Equal(t, Size, cfg.Height)

	user, err := f.store.FindByID(context.Background(), f.userID)
	require.NoError(t, err)
	require.Equal(t, url, user.AvatarURL)
}

func TestChangeAcceptsUppercaseExtension(t *testing.T) {
	f := newFixture(t)
	tmp := f.upload(t, "photo.JPG")

	url, err := f.svc.Change(context.Background(), tmp, f.userID)
	require.NoError(t, err)
	require.Equal(t, "avatars/"+f.userID+".jpg", url)
}

func TestChangeRejectsOtherExtensions(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"photo.gif", "photo", "photo.jpeg.exe"} {
		tmp := filepath.Join(f.tmpDir, name)
		require.NoError(t, os.WriteFile(tmp, []byte("GIF89a"), 0o600))

		_, err := f.svc.Change(context.Background(), tmp, f.userID)
		require.ErrorIs(t, err, apperr.ErrValidation, name)

		_, statErr := os.Stat(tmp)
		require.True(t, os.IsNotExist(statErr), "rejected upload %s must be deleted", name)
	}
	require.Empty(t, f.storedFiles(t))
}

func TestChangeRequiresFile(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Change(context.Background(), "", f.userID)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestChangeWithDifferentExtensionLeavesOneFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Change(ctx, f.upload(t, "first.png"), f.userID)
	require.NoError(t, err)
	url, err := f.svc.Change(ctx, f.upload(t, "second.jpg"), f.userID)
	require.NoError(t, err)

	require.Equal(t, []string{f.userID + ".jpg"}, f.storedFiles(t))
	require.Equal(t, "avatars/"+f.userID+".jpg", url)
}

func TestChangeWithSameExtensionOverwrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Change(ctx, f.upload(t, "first.png"), f.userID)
	require.NoError(t, err)
	_, err = f.svc.Change(ctx, f.upload(t, "second.png"), f.userID)
	require.NoError(t, err)

	require.Equal(t, []string{f.userID + ".png"}, f.storedFiles(t))
}

func TestChangeReportsLoadFileError(t *testing.T) {
	f := newFixture(t)
	tmp := filepath.Join(f.tmpDir, "broken.png")
	require.NoError(t, os.WriteFile(tmp, []byte("not an image"), 0o600))

	_, err := f.svc.Change(context.Background(), tmp, f.userID)
	require.ErrorIs(t, err, apperr.ErrValidation)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, loadFileError, appErr.Message)

	_, statErr := os.Stat(tmp)
	require.True(t, os.IsNotExist(statErr))
	require.Empty(t, f.storedFiles(t))
}

func TestChangeUnknownUserIsLoadFileError(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Change(context.Background(), f.upload(t, "a.png"), uuid.NewString())
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDefaultURLIsDeterministic(t *testing.T) {
	a := DefaultURL("a@x.com")
	require.Equal(t, a, DefaultURL("  A@X.com "))
	require.NotEqual(t, a, DefaultURL("b@x.com"))
	require.Contains(t, a, "https://s.gravatar.com/avatar/")
	require.Contains(t, a, "s=250")
}
