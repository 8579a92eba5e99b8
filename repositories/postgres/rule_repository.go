package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/repositories"
	"go.uber.org/zap"
)

const ruleColumns = `id, name, dataset_id, fields, filters, aggregations, obfuscation, ttl_minutes, tags, created_at, updated_at`

// RuleRepository implements the repositories.RuleRepository interface
type RuleRepository struct {
	base
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *DB, logger *zap.Logger) repositories.RuleRepository {
	return &RuleRepository{base{db: db, logger: logger}}
}

func ruleArgs(rule *models.Rule) ([]any, error) {
	filters, err := jsonb(rule.Filters)
	if err != nil {
		return nil, err
	}
	if filters == nil {
		filters = []byte("[]")
	}
	aggs, err := jsonb(rule.Aggregations)
	if err != nil {
		return nil, err
	}
	if aggs == nil {
		aggs = []byte("[]")
	}
	obf, err := jsonb(rule.Obfuscation)
	if err != nil {
		return nil, err
	}
	tags := rule.Tags
	if tags == nil {
		tags = []string{}
	}
	return []any{
		rule.ID,
		rule.Name,
		rule.DatasetID,
		pq.Array(rule.Fields),
		filters,
		aggs,
		obf,
		rule.TTLMinutes,
		pq.Array(tags),
		rule.CreatedAt,
		rule.UpdatedAt,
	}, nil
}

// Create stores a new rule
func (r *RuleRepository) Create(ctx context.Context, rule *models.Rule) error {
	args, err := ruleArgs(rule)
	if err != nil {
		return err
	}
	query := `INSERT INTO rules (` + ruleColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := r.exec(ctx).ExecContext(ctx, query, args...); err != nil {
		return mapError("failed to create rule", err)
	}

	r.logger.Debug("rule created", zap.String("id", rule.ID.String()))
	return nil
}

// GetByID retrieves a rule by ID
func (r *RuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = $1`
	rule, err := scanRule(r.exec(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(fmt.Sprintf("rule %s", id), err)
	}
	return rule, nil
}

// GetByDatasetID retrieves all rules referencing a dataset
func (r *RuleRepository) GetByDatasetID(ctx context.Context, datasetID uuid.UUID) ([]*models.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE dataset_id = $1 ORDER BY created_at DESC`
	return r.queryRules(ctx, query, datasetID)
}

// List retrieves all rules, newest first
func (r *RuleRepository) List(ctx context.Context) ([]*models.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules ORDER BY created_at DESC`
	return r.queryRules(ctx, query)
}

// Update replaces the mutable fields of a rule
func (r *RuleRepository) Update(ctx context.Context, rule *models.Rule) error {
	args, err := ruleArgs(rule)
	if err != nil {
		return err
	}
	// created_at is immutable
	args = append(args[:9], args[10])
	query := `
		UPDATE rules
		SET name = $2, dataset_id = $3, fields = $4, filters = $5, aggregations = $6,
		    obfuscation = $7, ttl_minutes = $8, tags = $9, updated_at = $10
		WHERE id = $1
	`
	res, err := r.exec(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return mapError("failed to update rule", err)
	}
	if err := expectAffected("failed to update rule", res); err != nil {
		return err
	}

	r.logger.Debug("rule updated", zap.String("id", rule.ID.String()))
	return nil
}

// Delete deletes a rule
func (r *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.exec(ctx).ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return mapError("failed to delete rule", err)
	}
	return expectAffected("failed to delete rule", res)
}

// WithTx returns a new repository instance bound to the transaction
func (r *RuleRepository) WithTx(tx repositories.Transaction) repositories.RuleRepository {
	return &RuleRepository{r.bind(tx)}
}

func (r *RuleRepository) queryRules(ctx context.Context, query string, args ...any) ([]*models.Rule, error) {
	rows, err := r.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var out []*models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule rows: %w", err)
	}
	return out, nil
}

func scanRule(row rowScanner) (*models.Rule, error) {
	rule := &models.Rule{}
	var fields, tags pq.StringArray
	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.DatasetID,
		&fields,
		scanJSON(&rule.Filters),
		scanJSON(&rule.Aggregations),
		scanJSON(&rule.Obfuscation),
		&rule.TTLMinutes,
		&tags,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rule.Fields = []string(fields)
	rule.Tags = []string(tags)
	if rule.Tags == nil {
		rule.Tags = []string{}
	}
	if rule.Filters == nil {
		rule.Filters = []models.Filter{}
	}
	return rule, nil
}
