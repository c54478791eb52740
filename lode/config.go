package lode

import (
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "gamelogger"

// DefaultBatchSize bounds the number of record rows per dataset write.
const DefaultBatchSize = 1000

// partitionKeys is the Hive layout shared by the write and read paths.
// Every row carries these keys as fields.
var partitionKeys = []string{"day", "capture", "record_kind"}

// Config identifies where one capture's rows land.
type Config struct {
	Dataset  string
	LoggerID int
	// Day overrides the day partition. Empty derives it from the
	// capture's start time.
	Day string
	// BatchSize caps rows per write. Zero means DefaultBatchSize.
	BatchSize int
}

func (c Config) withDefaults() Config {
	if c.Dataset == "" {
		c.Dataset = DefaultDataset
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// Validate rejects dataset IDs that would escape the store prefix.
func (c Config) Validate() error {
	ds := c.withDefaults().Dataset
	if ds != path.Base(ds) || ds == "." || ds == ".." {
		return fmt.Errorf("invalid dataset %q", ds)
	}
	if c.Day != "" {
		if _, err := time.Parse(time.DateOnly, c.Day); err != nil {
			return errors.New("day must be YYYY-MM-DD")
		}
	}
	return nil
}

// DeriveDay returns the UTC day partition value for t.
func DeriveDay(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// partitionPath mirrors the Hive layout for error context and archive keys.
func partitionPath(dataset, day string, guid uuid.UUID, kind string) string {
	return fmt.Sprintf("datasets/%s/partitions/day=%s/capture=%s/record_kind=%s",
		dataset, day, guid, kind)
}
