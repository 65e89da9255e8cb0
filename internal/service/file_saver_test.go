package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/corp-reports/internal/models"
	appErrors "github.com/noah-isme/corp-reports/pkg/errors"
	"github.com/noah-isme/corp-reports/pkg/storage"
)

type failingStorage struct {
	err error
}

func (f failingStorage) SaveStream(filename string, r io.Reader) (string, error) {
	return "", f.err
}

func TestFileNamer(t *testing.T) {
	at := time.Date(2024, time.January, 31, 23, 59, 0, 0, time.UTC)
	namer := NewFileNamer(func() time.Time { return at }, "")

	assert.Equal(t, "01/31/2024 - ACME-001.xlsx", namer.Name("ACME-001"))
	assert.Equal(t, "01/31/2024 - Unknown Account.xlsx", namer.Name(""))
	assert.Equal(t, "01/31/2024 - Unknown Account.xlsx", namer.Name("   "))
	assert.Equal(t, "2024-02-01 - GLBX-002.xlsx", NewFileNamer(nil, "2006-01-02").NameAt(at.Add(time.Hour), "GLBX-002"))
}

func TestFileSaverSave(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	saver := NewFileSaver(store, zap.NewNop())

	artifact := &models.DownloadArtifact{Data: []byte("PK\x03\x04report"), SuggestedFileName: "01/31/2024 - ACME-001.xlsx"}
	path, err := saver.Save(context.Background(), artifact)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "01_31_2024 - ACME-001.xlsx"), path)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("PK\x03\x04report"), content)
	assert.Nil(t, artifact.Data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileSaverReleasesDataOnFailure(t *testing.T) {
	saver := NewFileSaver(failingStorage{err: errors.New("disk full")}, nil)
	artifact := &models.DownloadArtifact{Data: []byte("data"), SuggestedFileName: "report.xlsx"}

	_, err := saver.Save(context.Background(), artifact)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrSave))
	assert.Nil(t, artifact.Data)
}

func TestFileSaverRejectsInvalidInput(t *testing.T) {
	saver := NewFileSaver(failingStorage{}, nil)

	_, err := saver.Save(context.Background(), nil)
	assert.True(t, errors.Is(err, appErrors.ErrSave))

	_, err = saver.Save(context.Background(), &models.DownloadArtifact{Data: []byte("x")})
	assert.True(t, errors.Is(err, appErrors.ErrSave))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	artifact := &models.DownloadArtifact{Data: []byte("x"), SuggestedFileName: "a.xlsx"}
	_, err = saver.Save(ctx, artifact)
	assert.True(t, errors.Is(err, appErrors.ErrSave))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Nil(t, artifact.Data)
}
