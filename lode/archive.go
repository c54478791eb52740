package lode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/psforever/GameLogger/capture"
	"github.com/psforever/GameLogger/iox"
)

// ErrInvalidArchivePath is returned for archive keys outside the dataset.
var ErrInvalidArchivePath = errors.New("invalid archive path")

// ArchiveCapture serialises f and stores it under the capture's
// partition in files/. The store key is returned. Archives bypass the
// dataset's snapshot machinery, so re-archiving overwrites in place.
func (e *Exporter) ArchiveCapture(ctx context.Context, f *capture.File) (string, error) {
	store, err := e.getOrCreateStore()
	if err != nil {
		e.collector.IncExportWriteFailure()
		return "", err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("encode capture: %w", err)
	}

	key := e.archivePath(f)
	if err := store.Put(ctx, key, &buf); err != nil {
		e.collector.IncExportWriteFailure()
		return "", wrap("archive", key, err)
	}
	e.collector.IncExportWriteSuccess()
	return key, nil
}

// FetchArchive loads an archived capture by the key ArchiveCapture
// returned.
func (e *Exporter) FetchArchive(ctx context.Context, key string) (*capture.File, error) {
	if !strings.HasPrefix(key, "datasets/"+e.config.Dataset+"/") || strings.Contains(key, "..") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArchivePath, key)
	}
	store, err := e.getOrCreateStore()
	if err != nil {
		return nil, err
	}
	rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, wrap("fetch", key, err)
	}
	defer iox.DiscardClose(rc)

	f, err := capture.Read(rc, nil)
	if err != nil {
		return nil, fmt.Errorf("decode archive %s: %w", key, err)
	}
	return f, nil
}

// archivePath computes the key for f.
// Format: datasets/<dataset>/partitions/day=<d>/capture=<guid>/files/<name>.gcap
func (e *Exporter) archivePath(f *capture.File) string {
	name := capture.DefaultFilename(f.StartTime())
	if p := f.Path(); p != "" {
		name = filepath.Base(p)
	}
	return path.Join(
		fmt.Sprintf("datasets/%s/partitions/day=%s/capture=%s", e.config.Dataset, e.day(f.StartTime()), f.GUID()),
		"files", name,
	)
}
