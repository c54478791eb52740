package lode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/psforever/GameLogger/capture"
	"github.com/psforever/GameLogger/metrics"
)

// ExportSummary reports what one ExportCapture call wrote.
type ExportSummary struct {
	GUID      string
	Day       string
	Rows      int
	Snapshots int
}

// Exporter writes captures into a Hive-partitioned JSONL dataset and
// archives the raw capture files beside it.
type Exporter struct {
	dataset   lode.Dataset
	config    Config
	collector *metrics.Collector

	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error
}

// NewExporter creates an exporter over filesystem storage rooted at root.
func NewExporter(cfg Config, root string) (*Exporter, error) {
	return NewExporterWithFactory(cfg, lode.NewFSFactory(root))
}

// NewExporterWithFactory creates an exporter over any store factory.
// Tests use lode.NewMemoryFactory().
func NewExporterWithFactory(cfg Config, factory lode.StoreFactory) (*Exporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	ds, err := NewReadDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &Exporter{dataset: ds, config: cfg, storeFactory: factory}, nil
}

// Instrument attaches a collector; write outcomes are counted against it.
func (e *Exporter) Instrument(c *metrics.Collector) *Exporter {
	e.collector = c
	return e
}

// Dataset returns the underlying dataset for read-back.
func (e *Exporter) Dataset() lode.Dataset { return e.dataset }

// ExportCapture writes every game record of f as a record row, then the
// capture row. Record rows are written in batches of Config.BatchSize,
// one snapshot per batch. A failure leaves no capture row, so readers
// treat the export as absent.
func (e *Exporter) ExportCapture(ctx context.Context, f *capture.File) (ExportSummary, error) {
	day := e.day(f.StartTime())
	guid := f.GUID()
	sum := ExportSummary{GUID: guid.String(), Day: day}

	records := f.Records()
	for start := 0; start < len(records); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(records))
		batch := make([]any, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, toRecordRow(i, records[i], day, sum.GUID).toMap())
		}
		if err := e.write(ctx, batch, partitionPath(e.config.Dataset, day, guid, RecordKindRecord)); err != nil {
			return sum, err
		}
		sum.Rows += len(batch)
		sum.Snapshots++
	}

	row := toCaptureRow(f, e.config, day).toMap()
	if err := e.write(ctx, []any{row}, partitionPath(e.config.Dataset, day, guid, RecordKindCapture)); err != nil {
		return sum, err
	}
	sum.Rows++
	sum.Snapshots++
	return sum, nil
}

// WriteMetrics writes one metrics row for the capture identified by f.
func (e *Exporter) WriteMetrics(ctx context.Context, f *capture.File, snap metrics.Snapshot, at time.Time) error {
	day := e.day(f.StartTime())
	row := toMetricsRecordMap(snap, day, f.GUID().String(), at)
	return e.write(ctx, []any{row}, partitionPath(e.config.Dataset, day, f.GUID(), RecordKindMetrics))
}

func (e *Exporter) write(ctx context.Context, rows []any, path string) error {
	if _, err := e.dataset.Write(ctx, rows, lode.Metadata{}); err != nil {
		e.collector.IncExportWriteFailure()
		return WrapWriteError(err, path)
	}
	e.collector.IncExportWriteSuccess()
	return nil
}

func (e *Exporter) day(start time.Time) string {
	if e.config.Day != "" {
		return e.config.Day
	}
	return DeriveDay(start)
}

// getOrCreateStore lazily initializes the raw store used for archives.
func (e *Exporter) getOrCreateStore() (lode.Store, error) {
	e.storeOnce.Do(func() {
		e.store, e.storeErr = e.storeFactory()
		if e.storeErr != nil {
			e.storeErr = fmt.Errorf("archive store init failed: %w", e.storeErr)
		}
	})
	return e.store, e.storeErr
}

// Close releases exporter resources. The dataset holds none today.
func (e *Exporter) Close() error {
	return nil
}
