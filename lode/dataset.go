package lode

import (
	"context"
	"fmt"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// Backend names accepted by Target.
const (
	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Target selects a storage backend for both export and read-back.
type Target struct {
	Backend string
	// Path is the filesystem root for BackendFS.
	Path string
	S3   S3Config
}

// Factory resolves t into a store factory.
func (t Target) Factory(ctx context.Context) (lode.StoreFactory, error) {
	switch t.Backend {
	case BackendFS, "":
		if t.Path == "" {
			return nil, fmt.Errorf("fs storage requires a path")
		}
		return lode.NewFSFactory(t.Path), nil
	case BackendS3:
		return NewS3Factory(ctx, t.S3)
	case BackendMemory:
		return lode.NewMemoryFactory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", t.Backend)
	}
}

// NewReadDataset opens dataset with the codec and layout the exporter
// writes with.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// NewReadDatasetFS opens a dataset on the filesystem.
func NewReadDatasetFS(dataset, rootPath string) (lode.Dataset, error) {
	return NewReadDataset(dataset, lode.NewFSFactory(rootPath))
}

// NewReadDatasetS3 opens a dataset on S3.
func NewReadDatasetS3(ctx context.Context, dataset string, s3cfg S3Config) (lode.Dataset, error) {
	factory, err := NewS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewReadDataset(dataset, factory)
}

// snapshotHas reports whether any file in snap sits under key=value.
// An empty value matches everything.
func snapshotHas(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks for an exact key=value path segment so
// that capture=a does not match capture=ab.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for part := range strings.SplitSeq(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
