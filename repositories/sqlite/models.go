package sqlite

import (
	"time"

	"github.com/google/uuid"
	"github.com/upb/dataguardian/models"
)

type DatasetModel struct {
	ID          string `gorm:"primaryKey"`
	Name        string
	RowCount    int
	Schema      []models.Column      `gorm:"serializer:json"`
	Stats       *models.DatasetStats `gorm:"serializer:json"`
	ContentHash string               `gorm:"uniqueIndex"`
	SizeBytes   int64
	Origin      string
	CreatedAt   time.Time
}

func (DatasetModel) TableName() string { return "datasets" }

func datasetModel(d *models.Dataset) DatasetModel {
	return DatasetModel{
		ID:          d.ID.String(),
		Name:        d.Name,
		RowCount:    d.RowCount,
		Schema:      d.Schema,
		Stats:       d.Stats,
		ContentHash: d.ContentHash,
		SizeBytes:   d.SizeBytes,
		Origin:      string(d.Origin),
		CreatedAt:   d.CreatedAt,
	}
}

func (m DatasetModel) domain() *models.Dataset {
	return &models.Dataset{
		ID:          uuid.MustParse(m.ID),
		Name:        m.Name,
		RowCount:    m.RowCount,
		Schema:      m.Schema,
		Stats:       m.Stats,
		ContentHash: m.ContentHash,
		SizeBytes:   m.SizeBytes,
		Origin:      models.DatasetOrigin(m.Origin),
		CreatedAt:   m.CreatedAt,
	}
}

type RuleModel struct {
	ID           string `gorm:"primaryKey"`
	Name         string
	DatasetID    string               `gorm:"index"`
	Fields       []string             `gorm:"serializer:json"`
	Filters      []models.Filter      `gorm:"serializer:json"`
	Aggregations []models.Aggregation `gorm:"serializer:json"`
	Obfuscation  *models.Obfuscation  `gorm:"serializer:json"`
	TTLMinutes   int
	Tags         []string `gorm:"serializer:json"`
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

func (RuleModel) TableName() string { return "rules" }

func ruleModel(r *models.Rule) RuleModel {
	return RuleModel{
		ID:           r.ID.String(),
		Name:         r.Name,
		DatasetID:    r.DatasetID.String(),
		Fields:       r.Fields,
		Filters:      nonNil(r.Filters),
		Aggregations: nonNil(r.Aggregations),
		Obfuscation:  r.Obfuscation,
		TTLMinutes:   r.TTLMinutes,
		Tags:         nonNil(r.Tags),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (m RuleModel) domain() *models.Rule {
	return &models.Rule{
		ID:           uuid.MustParse(m.ID),
		Name:         m.Name,
		DatasetID:    uuid.MustParse(m.DatasetID),
		Fields:       m.Fields,
		Filters:      nonNil(m.Filters),
		Aggregations: m.Aggregations,
		Obfuscation:  m.Obfuscation,
		TTLMinutes:   m.TTLMinutes,
		Tags:         nonNil(m.Tags),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

type StreamModel struct {
	ID           string `gorm:"primaryKey"`
	RuleID       string `gorm:"index"`
	Name         string
	Status       string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	AccessCount  int64
	LastAccessed *time.Time
}

func (StreamModel) TableName() string { return "streams" }

func streamModel(s *models.Stream) StreamModel {
	return StreamModel{
		ID:           s.ID.String(),
		RuleID:       s.RuleID.String(),
		Name:         s.Name,
		Status:       string(s.Status),
		ExpiresAt:    s.ExpiresAt,
		CreatedAt:    s.CreatedAt,
		AccessCount:  s.AccessCount,
		LastAccessed: s.LastAccessed,
	}
}

func (m StreamModel) domain() *models.Stream {
	return &models.Stream{
		ID:           uuid.MustParse(m.ID),
		RuleID:       uuid.MustParse(m.RuleID),
		Name:         m.Name,
		Status:       models.StreamStatus(m.Status),
		ExpiresAt:    m.ExpiresAt,
		CreatedAt:    m.CreatedAt,
		AccessCount:  m.AccessCount,
		LastAccessed: m.LastAccessed,
	}
}

type TokenModel struct {
	ID          string `gorm:"primaryKey"`
	StreamID    string `gorm:"index"`
	Name        string
	TokenHash   string              `gorm:"uniqueIndex"`
	TokenPrefix string
	Scope       []models.TokenScope `gorm:"serializer:json"`
	ExpiresAt   time.Time
	OneTime     bool
	Revoked     bool
	AccessCount int64
	LastUsed    *time.Time
	CreatedAt   time.Time
}

func (TokenModel) TableName() string { return "tokens" }

func tokenModel(t *models.Token) TokenModel {
	return TokenModel{
		ID:          t.ID.String(),
		StreamID:    t.StreamID.String(),
		Name:        t.Name,
		TokenHash:   t.SecretHash,
		TokenPrefix: t.Prefix,
		Scope:       t.Scope,
		ExpiresAt:   t.ExpiresAt,
		OneTime:     t.OneTime,
		Revoked:     t.Revoked,
		AccessCount: t.AccessCount,
		LastUsed:    t.LastUsed,
		CreatedAt:   t.CreatedAt,
	}
}

func (m TokenModel) domain() *models.Token {
	return &models.Token{
		ID:          uuid.MustParse(m.ID),
		StreamID:    uuid.MustParse(m.StreamID),
		Name:        m.Name,
		SecretHash:  m.TokenHash,
		Prefix:      m.TokenPrefix,
		Scope:       m.Scope,
		ExpiresAt:   m.ExpiresAt,
		OneTime:     m.OneTime,
		Revoked:     m.Revoked,
		AccessCount: m.AccessCount,
		LastUsed:    m.LastUsed,
		CreatedAt:   m.CreatedAt,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
