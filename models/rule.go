package models

import (
	"time"

	"github.com/google/uuid"
)

// FilterOp is a row filter operator
type FilterOp string

const (
	FilterOpEquals    FilterOp = "equals"
	FilterOpContains  FilterOp = "contains"
	FilterOpGT        FilterOp = "gt"
	FilterOpGTE       FilterOp = "gte"
	FilterOpLT        FilterOp = "lt"
	FilterOpLTE       FilterOp = "lte"
	FilterOpBetween   FilterOp = "between"
	FilterOpIn        FilterOp = "in"
	FilterOpRangeDate FilterOp = "rangeDate"
)

// AggregationOp is a grouping or reducing operator
type AggregationOp string

const (
	AggregationSum          AggregationOp = "sum"
	AggregationAvg          AggregationOp = "avg"
	AggregationMin          AggregationOp = "min"
	AggregationMax          AggregationOp = "max"
	AggregationCount        AggregationOp = "count"
	AggregationGroupByDay   AggregationOp = "groupByDay"
	AggregationGroupByMonth AggregationOp = "groupByMonth"
)

// IsGrouping reports whether the op buckets rows instead of reducing them
func (op AggregationOp) IsGrouping() bool {
	return op == AggregationGroupByDay || op == AggregationGroupByMonth
}

// NoiseLevel selects the scale of Laplace noise added to numeric output
type NoiseLevel string

const (
	NoiseLevelNone   NoiseLevel = ""
	NoiseLevelLow    NoiseLevel = "low"
	NoiseLevelMedium NoiseLevel = "medium"
	NoiseLevelHigh   NoiseLevel = "high"
)

// Filter restricts exposed rows. Value2 is required for between and rangeDate.
type Filter struct {
	Field  string   `json:"field" validate:"required"`
	Op     FilterOp `json:"op" validate:"required"`
	Value  any      `json:"value"`
	Value2 any      `json:"value2,omitempty"`
}

// Aggregation groups or reduces the filtered rows
type Aggregation struct {
	Field string        `json:"field" validate:"required"`
	Op    AggregationOp `json:"op" validate:"required"`
	Alias string        `json:"alias,omitempty"`
}

// OutputName returns the column name produced by the aggregation
func (a Aggregation) OutputName() string {
	switch {
	case a.Op == AggregationGroupByDay:
		return a.Field + "_day"
	case a.Op == AggregationGroupByMonth:
		return a.Field + "_month"
	case a.Alias != "":
		return a.Alias
	default:
		return a.Field + "_" + string(a.Op)
	}
}

// Obfuscation holds the privacy transforms applied after aggregation
type Obfuscation struct {
	Jitter           float64    `json:"jitter,omitempty"`
	Rounding         float64    `json:"rounding,omitempty"`
	BucketSize       float64    `json:"bucket_size,omitempty"`
	KAnonymity       int        `json:"k_anonymity,omitempty"`
	QuasiIdentifiers []string   `json:"quasi_identifiers,omitempty"`
	DropPII          bool       `json:"drop_pii,omitempty"`
	NoiseLevel       NoiseLevel `json:"noise_level,omitempty"`
}

// Rule is a named, validated description of what part of a dataset may be exposed
type Rule struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	Name         string        `json:"name" db:"name"`
	DatasetID    uuid.UUID     `json:"dataset_id" db:"dataset_id"` // reference, not ownership
	Fields       []string      `json:"fields" db:"fields"`
	Filters      []Filter      `json:"filters" db:"filters"`
	Aggregations []Aggregation `json:"aggregations,omitempty" db:"aggregations"`
	Obfuscation  *Obfuscation  `json:"obfuscation,omitempty" db:"obfuscation"`
	TTLMinutes   int           `json:"ttl_minutes" db:"ttl_minutes"`
	Tags         []string      `json:"tags" db:"tags"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Rule model
func (Rule) TableName() string {
	return "rules"
}

// NewRule creates a new Rule instance
func NewRule(name string, datasetID uuid.UUID, fields []string, ttlMinutes int, now time.Time) *Rule {
	return &Rule{
		ID:         uuid.New(),
		Name:       name,
		DatasetID:  datasetID,
		Fields:     fields,
		Filters:    []Filter{},
		TTLMinutes: ttlMinutes,
		Tags:       []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// HasAggregations reports whether the rule replaces row-level output with groups
func (r *Rule) HasAggregations() bool {
	return len(r.Aggregations) > 0
}

// TTL returns the rule's validity window
func (r *Rule) TTL() time.Duration {
	return time.Duration(r.TTLMinutes) * time.Minute
}
