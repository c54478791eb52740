package lode

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/justapithecus/lode/lode"
)

var (
	// ErrCaptureNotFound is returned when no complete export exists for a GUID.
	ErrCaptureNotFound = errors.New("capture not found in dataset")
	// ErrNoMetricsFound is returned when no metrics rows exist.
	ErrNoMetricsFound = errors.New("no metrics records found")
)

// CaptureExport is a capture read back from the dataset.
type CaptureExport struct {
	Capture map[string]any
	// Records are ordered by index.
	Records []map[string]any
}

// ReadCapture collects the rows exported for guid. Record rows without a
// capture row mean the export never completed and are reported as
// ErrCaptureNotFound.
func ReadCapture(ctx context.Context, ds lode.Dataset, guid string) (*CaptureExport, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	out := &CaptureExport{}
	for _, snap := range snapshots {
		if !snapshotHas(snap, "capture", guid) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for _, item := range data {
			row, ok := item.(map[string]any)
			if !ok || toString(row["capture"]) != guid {
				continue
			}
			switch row["record_kind"] {
			case RecordKindCapture:
				out.Capture = row
			case RecordKindRecord:
				out.Records = append(out.Records, row)
			}
		}
	}

	if out.Capture == nil {
		return nil, fmt.Errorf("%w: %s", ErrCaptureNotFound, guid)
	}
	slices.SortStableFunc(out.Records, func(a, b map[string]any) int {
		return cmp.Compare(toInt64(a["index"]), toInt64(b["index"]))
	})
	return out, nil
}

// QueryLatestMetrics returns the most recent metrics row, optionally
// restricted to one capture.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, guid string) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	// Snapshots are ordered by creation time.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotHas(snap, "record_kind", RecordKindMetrics) || !snapshotHas(snap, "capture", guid) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for _, item := range data {
			row, ok := item.(map[string]any)
			if !ok || row["record_kind"] != RecordKindMetrics {
				continue
			}
			if guid != "" && toString(row["capture"]) != guid {
				continue
			}
			return row, nil
		}
	}
	return nil, ErrNoMetricsFound
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 normalises numbers decoded from JSONL (float64) or held in
// memory (int, int64, uint64).
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
