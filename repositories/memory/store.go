// Package memory is the default record store: mutex-guarded maps holding
// copies, so callers never alias stored records.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/repositories"
)

// Store backs every repository with one lock
type Store struct {
	mu       sync.RWMutex
	datasets map[uuid.UUID]*models.Dataset
	rules    map[uuid.UUID]*models.Rule
	streams  map[uuid.UUID]*models.Stream
	tokens   map[uuid.UUID]*models.Token
	hashes   map[string]uuid.UUID // token hash -> token id
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		datasets: make(map[uuid.UUID]*models.Dataset),
		rules:    make(map[uuid.UUID]*models.Rule),
		streams:  make(map[uuid.UUID]*models.Stream),
		tokens:   make(map[uuid.UUID]*models.Token),
		hashes:   make(map[string]uuid.UUID),
	}
}

// NewRepositories returns repositories sharing one store. There is no audit archive.
func NewRepositories() *repositories.Repositories {
	s := NewStore()
	return &repositories.Repositories{
		Datasets:  &DatasetRepository{s},
		Rules:     &RuleRepository{s},
		Streams:   &StreamRepository{s},
		Tokens:    &TokenRepository{s},
		TxManager: TransactionManager{},
	}
}

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, repositories.ErrNotFound)
}

func newestFirst[T any](items []T, created func(T) time.Time) []T {
	sort.SliceStable(items, func(i, j int) bool {
		return created(items[i]).After(created(items[j]))
	})
	return items
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyDataset(d *models.Dataset) *models.Dataset {
	c := *d
	c.Schema = slices.Clone(d.Schema)
	if d.Stats != nil {
		stats := *d.Stats
		stats.NullCounts = maps.Clone(d.Stats.NullCounts)
		stats.UniqueCounts = maps.Clone(d.Stats.UniqueCounts)
		stats.DataTypes = maps.Clone(d.Stats.DataTypes)
		c.Stats = &stats
	}
	return &c
}

func copyRule(r *models.Rule) *models.Rule {
	c := *r
	c.Fields = slices.Clone(r.Fields)
	c.Filters = slices.Clone(r.Filters)
	c.Aggregations = slices.Clone(r.Aggregations)
	c.Tags = slices.Clone(r.Tags)
	if r.Obfuscation != nil {
		o := *r.Obfuscation
		o.QuasiIdentifiers = slices.Clone(r.Obfuscation.QuasiIdentifiers)
		c.Obfuscation = &o
	}
	return &c
}

func copyStream(s *models.Stream) *models.Stream {
	c := *s
	c.LastAccessed = copyTime(s.LastAccessed)
	return &c
}

func copyToken(t *models.Token) *models.Token {
	c := *t
	c.Secret = ""
	c.Scope = slices.Clone(t.Scope)
	c.LastUsed = copyTime(t.LastUsed)
	return &c
}

// TransactionManager runs fn directly; every store call is already atomic
type TransactionManager struct{}

type transaction struct {
	ctx context.Context
}

func (t transaction) Commit() error            { return nil }
func (t transaction) Rollback() error          { return nil }
func (t transaction) Context() context.Context { return t.ctx }

// Begin starts a no-op transaction
func (TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return transaction{ctx: ctx}, nil
}

// InTransaction executes fn
func (m TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, _ := m.Begin(ctx)
	return fn(ctx, tx)
}
