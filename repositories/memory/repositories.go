package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/repositories"
)

// DatasetRepository implements repositories.DatasetRepository
type DatasetRepository struct{ s *Store }

func (r *DatasetRepository) Create(_ context.Context, d *models.Dataset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.datasets[d.ID]; ok {
		return fmt.Errorf("dataset %s: %w", d.ID, repositories.ErrDuplicate)
	}
	for _, existing := range r.s.datasets {
		if existing.ContentHash == d.ContentHash {
			return fmt.Errorf("dataset content %s: %w", d.ContentHash, repositories.ErrDuplicate)
		}
	}
	r.s.datasets[d.ID] = copyDataset(d)
	return nil
}

func (r *DatasetRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Dataset, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.datasets[id]
	if !ok {
		return nil, notFound("dataset", id)
	}
	return copyDataset(d), nil
}

func (r *DatasetRepository) GetByContentHash(_ context.Context, hash string) (*models.Dataset, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, d := range r.s.datasets {
		if d.ContentHash == hash {
			return copyDataset(d), nil
		}
	}
	return nil, notFound("dataset with hash", hash)
}

func (r *DatasetRepository) List(_ context.Context) ([]*models.Dataset, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.Dataset, 0, len(r.s.datasets))
	for _, d := range r.s.datasets {
		out = append(out, copyDataset(d))
	}
	return newestFirst(out, func(d *models.Dataset) time.Time { return d.CreatedAt }), nil
}

func (r *DatasetRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.datasets[id]; !ok {
		return notFound("dataset", id)
	}
	delete(r.s.datasets, id)
	return nil
}

func (r *DatasetRepository) WithTx(repositories.Transaction) repositories.DatasetRepository { return r }

// RuleRepository implements repositories.RuleRepository
type RuleRepository struct{ s *Store }

func (r *RuleRepository) Create(_ context.Context, rule *models.Rule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rules[rule.ID]; ok {
		return fmt.Errorf("rule %s: %w", rule.ID, repositories.ErrDuplicate)
	}
	r.s.rules[rule.ID] = copyRule(rule)
	return nil
}

func (r *RuleRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Rule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rule, ok := r.s.rules[id]
	if !ok {
		return nil, notFound("rule", id)
	}
	return copyRule(rule), nil
}

func (r *RuleRepository) GetByDatasetID(_ context.Context, datasetID uuid.UUID) ([]*models.Rule, error) {
	return r.filter(func(rule *models.Rule) bool { return rule.DatasetID == datasetID }), nil
}

func (r *RuleRepository) List(_ context.Context) ([]*models.Rule, error) {
	return r.filter(func(*models.Rule) bool { return true }), nil
}

func (r *RuleRepository) filter(keep func(*models.Rule) bool) []*models.Rule {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.Rule, 0)
	for _, rule := range r.s.rules {
		if keep(rule) {
			out = append(out, copyRule(rule))
		}
	}
	return newestFirst(out, func(r *models.Rule) time.Time { return r.CreatedAt })
}

func (r *RuleRepository) Update(_ context.Context, rule *models.Rule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.rules[rule.ID]
	if !ok {
		return notFound("rule", rule.ID)
	}
	updated := copyRule(rule)
	updated.CreatedAt = existing.CreatedAt
	r.s.rules[rule.ID] = updated
	return nil
}

func (r *RuleRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rules[id]; !ok {
		return notFound("rule", id)
	}
	delete(r.s.rules, id)
	return nil
}

func (r *RuleRepository) WithTx(repositories.Transaction) repositories.RuleRepository { return r }

// StreamRepository implements repositories.StreamRepository
type StreamRepository struct{ s *Store }

func (r *StreamRepository) Create(_ context.Context, stream *models.Stream) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.streams[stream.ID]; ok {
		return fmt.Errorf("stream %s: %w", stream.ID, repositories.ErrDuplicate)
	}
	r.s.streams[stream.ID] = copyStream(stream)
	return nil
}

func (r *StreamRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Stream, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	s, ok := r.s.streams[id]
	if !ok {
		return nil, notFound("stream", id)
	}
	return copyStream(s), nil
}

func (r *StreamRepository) GetByRuleID(_ context.Context, ruleID uuid.UUID) ([]*models.Stream, error) {
	return r.filter(func(s *models.Stream) bool { return s.RuleID == ruleID }), nil
}

func (r *StreamRepository) List(_ context.Context) ([]*models.Stream, error) {
	return r.filter(func(*models.Stream) bool { return true }), nil
}

func (r *StreamRepository) filter(keep func(*models.Stream) bool) []*models.Stream {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.Stream, 0)
	for _, s := range r.s.streams {
		if keep(s) {
			out = append(out, copyStream(s))
		}
	}
	return newestFirst(out, func(s *models.Stream) time.Time { return s.CreatedAt })
}

// Update persists status and access counters only
func (r *StreamRepository) Update(_ context.Context, stream *models.Stream) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.streams[stream.ID]
	if !ok {
		return notFound("stream", stream.ID)
	}
	existing.Status = stream.Status
	existing.AccessCount = stream.AccessCount
	existing.LastAccessed = copyTime(stream.LastAccessed)
	return nil
}

func (r *StreamRepository) WithTx(repositories.Transaction) repositories.StreamRepository { return r }

// TokenRepository implements repositories.TokenRepository
type TokenRepository struct{ s *Store }

func (r *TokenRepository) Create(_ context.Context, t *models.Token) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[t.ID]; ok {
		return fmt.Errorf("token %s: %w", t.ID, repositories.ErrDuplicate)
	}
	if _, ok := r.s.hashes[t.SecretHash]; ok {
		return fmt.Errorf("token hash: %w", repositories.ErrDuplicate)
	}
	r.s.tokens[t.ID] = copyToken(t)
	r.s.hashes[t.SecretHash] = t.ID
	return nil
}

func (r *TokenRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Token, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tokens[id]
	if !ok {
		return nil, notFound("token", id)
	}
	return copyToken(t), nil
}

func (r *TokenRepository) GetByHash(_ context.Context, hash string) (*models.Token, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.hashes[hash]
	if !ok {
		return nil, notFound("token", "by hash")
	}
	return copyToken(r.s.tokens[id]), nil
}

func (r *TokenRepository) GetByStreamID(_ context.Context, streamID uuid.UUID) ([]*models.Token, error) {
	return r.filter(func(t *models.Token) bool { return t.StreamID == streamID }), nil
}

func (r *TokenRepository) List(_ context.Context) ([]*models.Token, error) {
	return r.filter(func(*models.Token) bool { return true }), nil
}

func (r *TokenRepository) filter(keep func(*models.Token) bool) []*models.Token {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.Token, 0)
	for _, t := range r.s.tokens {
		if keep(t) {
			out = append(out, copyToken(t))
		}
	}
	return newestFirst(out, func(t *models.Token) time.Time { return t.CreatedAt })
}

// Update persists revocation and usage counters only
func (r *TokenRepository) Update(_ context.Context, t *models.Token) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.tokens[t.ID]
	if !ok {
		return notFound("token", t.ID)
	}
	existing.Revoked = t.Revoked
	existing.AccessCount = t.AccessCount
	existing.LastUsed = copyTime(t.LastUsed)
	return nil
}

func (r *TokenRepository) WithTx(repositories.Transaction) repositories.TokenRepository { return r }
