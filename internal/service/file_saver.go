package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/corp-reports/internal/models"
	appErrors "github.com/noah-isme/corp-reports/pkg/errors"
)

const (
	reportExtension    = ".xlsx"
	unknownAccountName = "Unknown Account"
)

type reportStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
}

// FileNamer derives the saved file name from the request date and account.
type FileNamer struct {
	now    func() time.Time
	layout string
}

// NewFileNamer builds a namer. now defaults to time.Now, layout to 01/02/2006.
func NewFileNamer(now func() time.Time, layout string) FileNamer {
	if now == nil {
		now = time.Now
	}
	if layout == "" {
		layout = "01/02/2006"
	}
	return FileNamer{now: now, layout: layout}
}

// Name returns "{shortDate} - {accountNumber}.xlsx" for a report requested now.
func (n FileNamer) Name(accountNumber string) string {
	now := n.now
	if now == nil {
		now = time.Now
	}
	return n.NameAt(now(), accountNumber)
}

// NameAt is Name for a report requested at t, rendered in t's location.
func (n FileNamer) NameAt(t time.Time, accountNumber string) string {
	layout := n.layout
	if layout == "" {
		layout = "01/02/2006"
	}
	account := strings.TrimSpace(accountNumber)
	if account == "" {
		account = unknownAccountName
	}
	return fmt.Sprintf("%s - %s%s", t.Format(layout), account, reportExtension)
}

// FileSaver writes a downloaded report to local storage and discards the
// in-memory payload afterwards, whatever the outcome.
type FileSaver struct {
	storage reportStorage
	logger  *zap.Logger
}

// NewFileSaver constructs a saver backed by storage.
func NewFileSaver(storage reportStorage, logger *zap.Logger) *FileSaver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSaver{storage: storage, logger: logger}
}

// Save writes artifact under its suggested name and returns the final path.
func (s *FileSaver) Save(ctx context.Context, artifact *models.DownloadArtifact) (string, error) {
	if artifact == nil {
		return "", appErrors.Clone(appErrors.ErrSave, "no report payload to save")
	}
	defer func() { artifact.Data = nil }()

	if err := ctx.Err(); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrSave.Code, appErrors.ErrSave.Status, appErrors.ErrSave.Message)
	}
	name := artifact.SuggestedFileName
	if name == "" {
		return "", appErrors.Clone(appErrors.ErrSave, "report file name missing")
	}

	path, err := s.storage.SaveStream(name, bytes.NewReader(artifact.Data))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrSave.Code, appErrors.ErrSave.Status, appErrors.ErrSave.Message)
	}
	s.logger.Sugar().Infow("report saved", "path", path, "bytes", len(artifact.Data))
	return path, nil
}
