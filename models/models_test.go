package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Dataset tests
func TestNewDataset(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ds := NewDataset("steps", DatasetOriginUpload, now)

	assert.NotEqual(t, uuid.Nil, ds.ID)
	assert.Equal(t, "steps", ds.Name)
	assert.Equal(t, DatasetOriginUpload, ds.Origin)
	assert.Equal(t, now, ds.CreatedAt)
	assert.Equal(t, ds.ID.String()+".csv", ds.BlobKey())
	assert.Equal(t, "datasets", ds.TableName())
}

func TestDataset_Column(t *testing.T) {
	ds := &Dataset{Schema: []Column{
		{Name: "email", Type: ColumnTypeString, PII: true},
		{Name: "steps", Type: ColumnTypeNumber},
	}}

	col, ok := ds.Column("steps")
	require.True(t, ok)
	assert.Equal(t, ColumnTypeNumber, col.Type)

	_, ok = ds.Column("missing")
	assert.False(t, ok)
}

// Rule tests
func TestNewRule(t *testing.T) {
	now := time.Now()
	datasetID := uuid.New()
	rule := NewRule("daily steps", datasetID, []string{"steps"}, 60, now)

	assert.NotEqual(t, uuid.Nil, rule.ID)
	assert.Equal(t, datasetID, rule.DatasetID)
	assert.Equal(t, time.Hour, rule.TTL())
	assert.False(t, rule.HasAggregations())
	assert.NotNil(t, rule.Filters)
	assert.NotNil(t, rule.Tags)
}

func TestAggregation_OutputName(t *testing.T) {
	tests := []struct {
		name string
		agg  Aggregation
		want string
	}{
		{"group by day", Aggregation{Field: "date", Op: AggregationGroupByDay}, "date_day"},
		{"group by month", Aggregation{Field: "date", Op: AggregationGroupByMonth}, "date_month"},
		{"reducer without alias", Aggregation{Field: "steps", Op: AggregationSum}, "steps_sum"},
		{"reducer with alias", Aggregation{Field: "steps", Op: AggregationAvg, Alias: "mean_steps"}, "mean_steps"},
		{"alias ignored on grouping", Aggregation{Field: "date", Op: AggregationGroupByDay, Alias: "x"}, "date_day"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.agg.OutputName())
		})
	}
}

func TestRule_JSONMarshaling(t *testing.T) {
	rule := NewRule("r", uuid.New(), []string{"steps"}, 30, time.Now().UTC())
	rule.Filters = []Filter{{Field: "steps", Op: FilterOpBetween, Value: 10.0, Value2: 20.0}}
	rule.Obfuscation = &Obfuscation{DropPII: true, KAnonymity: 5}

	data, err := json.Marshal(rule)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ttl_minutes":30`)
	assert.Contains(t, string(data), `"drop_pii":true`)

	var decoded Rule
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rule.ID, decoded.ID)
	assert.Equal(t, 5, decoded.Obfuscation.KAnonymity)
	assert.Equal(t, FilterOpBetween, decoded.Filters[0].Op)
}

// Stream tests
func TestStream_Lifecycle(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStream(uuid.New(), "partner feed", now, time.Hour)

	assert.True(t, s.IsActive())
	assert.False(t, s.IsTerminal())
	assert.Equal(t, now.Add(time.Hour), s.ExpiresAt)

	assert.False(t, s.ShouldExpire(now.Add(59*time.Minute)))
	assert.True(t, s.ShouldExpire(now.Add(time.Hour)))

	s.Status = StreamStatusRevoked
	assert.True(t, s.IsTerminal())
	assert.False(t, s.ShouldExpire(now.Add(2*time.Hour)))
}

// Token tests
func TestToken_Checks(t *testing.T) {
	now := time.Now()
	tok := &Token{
		Secret:    "secret",
		Scope:     []TokenScope{ScopeRead},
		ExpiresAt: now.Add(time.Minute),
		OneTime:   true,
	}

	assert.True(t, tok.HasScope(ScopeRead))
	assert.False(t, tok.HasScope(ScopeExport))
	assert.False(t, tok.Exhausted())
	assert.False(t, tok.Expired(now))
	assert.True(t, tok.Expired(now.Add(2*time.Minute)))

	tok.AccessCount = 1
	assert.True(t, tok.Exhausted())

	redacted := tok.Redacted()
	assert.Empty(t, redacted.Secret)
	assert.Equal(t, "secret", tok.Secret)
}

func TestToken_JSONHidesHash(t *testing.T) {
	tok := &Token{ID: uuid.New(), SecretHash: "abc123", Prefix: "tok_"}
	data, err := json.Marshal(tok)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "abc123")
	assert.NotContains(t, string(data), `"token"`)
}

// AuditEvent tests
func TestAuditEvent_Builders(t *testing.T) {
	streamID := uuid.New()
	ev := NewAuditEvent(AuditStreamRevoked, ActorAdmin, "revoked").
		WithResource(streamID).
		WithMeta("noop", true).
		WithSeverity(SeverityWarning)

	assert.Equal(t, AuditStreamRevoked, ev.Type)
	assert.Equal(t, streamID.String(), ev.ResourceID)
	assert.Equal(t, true, ev.Meta["noop"])
	assert.Equal(t, SeverityWarning, ev.Severity)
	assert.True(t, ev.Concerns(streamID.String()))
}

func TestAuditEvent_ConcernsMeta(t *testing.T) {
	streamID := uuid.New().String()
	ev := NewAuditEvent(AuditTokenCreated, ActorCitizen, "issued").
		WithResource(uuid.New()).
		WithMeta("stream_id", streamID)

	assert.True(t, ev.Concerns(streamID))
	assert.False(t, ev.Concerns(uuid.New().String()))
}

func TestExposedRows_RecordsAndLimit(t *testing.T) {
	rows := &ExposedRows{
		Columns: []string{"steps", "active"},
		Rows:    [][]any{{1.0, true}, {2.0, false}, {3.0, nil}},
	}

	recs := rows.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, 2.0, recs[1]["steps"])
	assert.Nil(t, recs[2]["active"])

	assert.Len(t, rows.Limit(2).Rows, 2)
	assert.Len(t, rows.Limit(0).Rows, 3)
	assert.Len(t, rows.Rows, 3)
}
