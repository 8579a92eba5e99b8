package models

import (
	"time"

	"github.com/google/uuid"
)

// ColumnType is the inferred type of a dataset column
type ColumnType string

const (
	ColumnTypeString  ColumnType = "string"
	ColumnTypeNumber  ColumnType = "number"
	ColumnTypeDate    ColumnType = "date"
	ColumnTypeBoolean ColumnType = "boolean"
)

// DatasetOrigin records how a dataset entered the system
type DatasetOrigin string

const (
	DatasetOriginUpload DatasetOrigin = "upload"
	DatasetOriginSample DatasetOrigin = "sample"
)

// Column describes one column of a dataset schema.
// Derived once at inference time and never mutated.
type Column struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	PII      bool       `json:"pii"`
	Nullable bool       `json:"nullable"`
	Unique   bool       `json:"unique"`
}

// DatasetStats holds full-table statistics computed during inference
type DatasetStats struct {
	TotalRows    int                   `json:"total_rows"`
	NullCounts   map[string]int        `json:"null_counts"`
	UniqueCounts map[string]int        `json:"unique_counts"`
	DataTypes    map[string]ColumnType `json:"data_types"`
}

// Dataset is an immutable tabular source with an inferred schema
type Dataset struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	RowCount    int           `json:"row_count" db:"row_count"`
	Schema      []Column      `json:"schema" db:"schema"`
	Stats       *DatasetStats `json:"stats,omitempty" db:"stats"`
	ContentHash string        `json:"content_hash" db:"content_hash"` // hex SHA-256 of the source bytes
	SizeBytes   int64         `json:"size_bytes" db:"size_bytes"`
	Origin      DatasetOrigin `json:"origin" db:"origin"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Dataset model
func (Dataset) TableName() string {
	return "datasets"
}

// NewDataset creates a new Dataset instance
func NewDataset(name string, origin DatasetOrigin, now time.Time) *Dataset {
	return &Dataset{
		ID:        uuid.New(),
		Name:      name,
		Origin:    origin,
		CreatedAt: now,
	}
}

// Column looks up a schema column by name
func (d *Dataset) Column(name string) (Column, bool) {
	for _, c := range d.Schema {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// BlobKey is the key under which the raw source bytes are stored
func (d *Dataset) BlobKey() string {
	return d.ID.String() + ".csv"
}
