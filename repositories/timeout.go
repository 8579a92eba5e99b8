package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/upb/dataguardian/models"
)

// WithTimeout wraps every repository so each call runs under its own deadline.
// A zero timeout returns repos unchanged.
func WithTimeout(repos *Repositories, timeout time.Duration) *Repositories {
	if timeout <= 0 {
		return repos
	}
	out := &Repositories{
		Datasets:  &timeoutDatasets{repos.Datasets, timeout},
		Rules:     &timeoutRules{repos.Rules, timeout},
		Streams:   &timeoutStreams{repos.Streams, timeout},
		Tokens:    &timeoutTokens{repos.Tokens, timeout},
		TxManager: repos.TxManager,
	}
	if repos.AuditEvents != nil {
		out.AuditEvents = &timeoutAudit{repos.AuditEvents, timeout}
	}
	return out
}

func bounded[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

func boundedErr(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

type timeoutDatasets struct {
	next DatasetRepository
	d    time.Duration
}

func (t *timeoutDatasets) Create(ctx context.Context, ds *models.Dataset) error {
	return boundedErr(ctx, t.d, func(ctx context.Context) error { return t.next.Create(ctx, ds) })
}

func (t *timeoutDatasets) GetByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	return bounded(ctx, t.d, func(ctx context.Context) (*models.Dataset, error) { return t.next.GetByID(ctx, id) })
}

func (t *timeoutDatasets) GetByContentHash(ctx context.Context, hash string) (*models.Dataset, error) {
	return bounded(ctx, t.d, func(ctx context.Context) (*models.Dataset, error) { return t.next.GetByContentHash(ctx, hash) })
}

func (t *timeoutDatasets) List(ctx context.Context) ([]*models.Dataset, error) {
	return bounded(ctx, t.d, t.next.List)
}

func (t *timeoutDatasets) Delete(ctx context.Context, id uuid.UUID) error {
	return boundedErr(ctx, t.d, func(ctx context.Context) error { return t.next.Delete(ctx, id) })
}

func (t *timeoutDatasets) WithTx(tx Transaction) DatasetRepository {
	return &timeoutDatasets{t.next.WithTx(tx), t.d}
}

type timeoutRules struct {
	next RuleRepository
	d    time.Duration
}

func (t *timeoutRules) Create(ctx context.Context, r *models.Rule) error {
	return boundedErr(ctx, t.d, func(ctx context.Context) error { return t.next.Create(ctx, r) })
}

func (t *timeoutRules) GetByID(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	return bounded(ctx, t.d, func(ctx context.Context) (*models.Rule, error) { return t.next.GetByID(ctx, id) })
}

func (t *timeoutRules) GetByDatasetID(ctx context.Context, id uuid.UUID) ([]*models.Rule, error) {
	return bounded(ctx, t.d, func(ctx context.Context) ([]*models.Rule, error) { return t.next.GetByDatasetID(ctx, id) })
}

func (t *timeoutRules) List(ctx context.Context) ([]*models.Rule, error) {
	return bounded(ctx, t.d, t.next.List)
}

func (t *timeoutRules) Update(ctx context.Context, r *models.Rule) error {
	return boundedErr(ctx, t.d, func(ctx context.Context) error { return t.next.Update(ctx, r) })
}

func (t *timeoutRules) Delete(ctx context.Context, id uuid.UUID) error {
	return boundedErr(ctx, t.d, func(ctx context.Context) error { return t.next.Delete(ctx, id) })
}

func (t *timeoutRules) WithTx(tx Transaction) RuleRepository {
	return &timeoutRules{t.next.WithTx(tx), t.d}
}

type timeoutStreams struct {
	next StreamRepository
	d    time.Duration
}

func (t *timeoutStreams) Create(ctx context.Context, s *models.Stream) error {
	return boundedErr(ctx, t.d, func(ctx context.Context) error { return t.next.Create(ctx, s) })
}

func (t *timeoutStreams) GetByID(ctx context.Context, id uuid.UUID) (*models.Stream, error) {
	return bounded(ctx, t.d, func(ctx context.Context) (*models.Stream, error) { return t.next.GetByID(ctx, id) })
}

func (t *timeoutStreams) GetByRuleID(ctx context.Context, id uuid.UUID) ([]*models.Stream, error) {
	return bounded(ctx, t.d, func(ctx context.Context) ([]*models.Stream, error) { return t.next.GetByRuleID(ctx, id) })
}

func (t *timeoutStreams) List(ctx context.Context) ([]*models.Stream, error) {
	return bounded(ctx, t.d, t.next.List)
}

func (t *timeoutStreams) Update(ctx context.Context, s *models.Stream) error {
	return boundedErr(ctx, t.d, func(ctx context.Context) error { return t.next.Update(ctx, s) })
}

func (t *timeoutStreams) WithTx(tx Transaction) StreamRepository {
	return &timeoutStreams{t.next.WithTx(tx), t.d}
}

type timeoutTokens struct {
	next TokenRepository
	d    time.Duration
}

func (t *timeoutTokens) Create(ctx context.Context, tok *models.Token) error {
	return boundedErr(ctx, t.d, func(ctx context.Context) error { return t.next.Create(ctx, tok) })
}

func (t *timeoutTokens) GetByID(ctx context.Context, id uuid.UUID) (*models.Token, error) {
	return bounded(ctx, t.d, func(ctx context.Context) (*models.Token, error) { return t.next.GetByID(ctx, id) })
}

func (t *timeoutTokens) GetByHash(ctx context.Context, hash string) (*models.Token, error) {
	return bounded(ctx, t.d, func(ctx context.Context) (*models.Token, error) { return t.next.GetByHash(ctx, hash) })
}

func (t *timeoutTokens) GetByStreamID(ctx context.Context, id uuid.UUID) ([]*models.Token, error) {
	return bounded(ctx, t.d, func(ctx context.Context) ([]*models.Token, error) { return t.next.GetByStreamID(ctx, id) })
}

func (t *timeoutTokens) List(ctx context.Context) ([]*models.Token, error) {
	return bounded(ctx, t.d, t.next.List)
}

func (t *timeoutTokens) Update(ctx context.Context, tok *models.Token) error {
	return boundedErr(ctx, t.d, func(ctx context.Context) error { return t.next.Update(ctx, tok) })
}

func (t *timeoutTokens) WithTx(tx Transaction) TokenRepository {
	return &timeoutTokens{t.next.WithTx(tx), t.d}
}

type timeoutAudit struct {
	next AuditRepository
	d    time.Duration
}

func (t *timeoutAudit) Insert(ctx context.Context, e *models.AuditEvent) error {
	return boundedErr(ctx, t.d, func(ctx context.Context) error { return t.next.Insert(ctx, e) })
}

func (t *timeoutAudit) List(ctx context.Context, limit, offset int) ([]*models.AuditEvent, error) {
	return bounded(ctx, t.d, func(ctx context.Context) ([]*models.AuditEvent, error) { return t.next.List(ctx, limit, offset) })
}

func (t *timeoutAudit) GetByResource(ctx context.Context, id string, limit int) ([]*models.AuditEvent, error) {
	return bounded(ctx, t.d, func(ctx context.Context) ([]*models.AuditEvent, error) { return t.next.GetByResource(ctx, id, limit) })
}
