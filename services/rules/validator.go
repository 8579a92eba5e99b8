// Package rules validates and manages privacy rules.
package rules

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/upb/dataguardian/config"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/services"
	"github.com/upb/dataguardian/services/schema"
)

// ValidRule is a rule that passed validation against its dataset's schema.
// It can only be obtained from Validator.Validate.
type ValidRule struct {
	rule *models.Rule
}

// Rule returns the validated rule
func (v ValidRule) Rule() *models.Rule {
	return v.rule
}

// Validator checks rules against a dataset schema and the privacy policy
type Validator struct {
	policy config.PrivacyPolicy
}

// NewValidator creates a validator bound to policy
func NewValidator(policy config.PrivacyPolicy) *Validator {
	return &Validator{policy: policy}
}

// Validate runs every check and returns either a ValidRule or the complete list of problems
func (v *Validator) Validate(rule *models.Rule, dataset *models.Dataset) (ValidRule, services.ValidationErrors) {
	var errs services.ValidationErrors
	if rule == nil {
		errs.Add("rule", "is required")
		return ValidRule{}, errs
	}
	if dataset == nil {
		errs.Add("dataset_id", "unknown dataset")
		return ValidRule{}, errs
	}

	v.checkFields(rule, dataset, &errs)
	v.checkFilters(rule, dataset, &errs)

	if rule.TTLMinutes <= 0 {
		errs.Add("ttl_minutes", "must be positive")
	}

	v.checkAggregations(rule, dataset, &errs)
	v.checkObfuscation(rule, dataset, &errs)

	if len(errs) > 0 {
		return ValidRule{}, errs
	}
	return ValidRule{rule: rule}, nil
}

func (v *Validator) checkFields(rule *models.Rule, dataset *models.Dataset, errs *services.ValidationErrors) {
	if len(rule.Fields) == 0 {
		errs.Add("fields", "must not be empty")
		return
	}

	seen := make(map[string]bool, len(rule.Fields))
	for i, f := range rule.Fields {
		key := fmt.Sprintf("fields[%d]", i)
		if _, ok := dataset.Column(f); !ok {
			errs.Add(key, "unknown column %q", f)
		}
		if seen[f] {
			errs.Add(key, "duplicate field %q", f)
		}
		seen[f] = true
	}
}

func isOrdered(op models.FilterOp) bool {
	switch op {
	case models.FilterOpGT, models.FilterOpGTE, models.FilterOpLT, models.FilterOpLTE, models.FilterOpBetween:
		return true
	}
	return false
}

// opAllowed reports whether op may filter a column of type t. known is false for unsupported ops.
func (v *Validator) opAllowed(op models.FilterOp, t models.ColumnType) (allowed, known bool) {
	switch {
	case op == models.FilterOpEquals || op == models.FilterOpIn:
		return true, true
	case op == models.FilterOpContains:
		return t == models.ColumnTypeString, true
	case op == models.FilterOpRangeDate:
		return t == models.ColumnTypeDate, true
	case isOrdered(op):
		if t == models.ColumnTypeNumber || t == models.ColumnTypeDate {
			return true, true
		}
		return t == models.ColumnTypeString && v.policy.AllowLexicographic, true
	}
	return false, false
}

func (v *Validator) checkFilters(rule *models.Rule, dataset *models.Dataset, errs *services.ValidationErrors) {
	for i, f := range rule.Filters {
		prefix := fmt.Sprintf("filters[%d]", i)

		col, ok := dataset.Column(f.Field)
		if !ok {
			errs.Add(prefix+".field", "unknown column %q", f.Field)
			continue
		}

		allowed, known := v.opAllowed(f.Op, col.Type)
		if !known {
			errs.Add(prefix+".op", "unsupported operator %q", f.Op)
			continue
		}
		if !allowed {
			errs.Add(prefix+".op", "operator %q not applicable to %s column %q", f.Op, col.Type, f.Field)
			continue
		}

		checkOperands(prefix, f, col.Type, errs)
	}
}

func checkOperands(prefix string, f models.Filter, t models.ColumnType, errs *services.ValidationErrors) {
	if f.Value == nil {
		errs.Add(prefix+".value", "is required")
		return
	}

	switch f.Op {
	case models.FilterOpIn:
		if len(schema.ListOf(f.Value)) == 0 {
			errs.Add(prefix+".value", "must be a non-empty list")
		}
		return
	case models.FilterOpEquals, models.FilterOpContains:
		return
	}

	// ordered comparison or range
	ranged := f.Op == models.FilterOpBetween || f.Op == models.FilterOpRangeDate
	if ranged && f.Value2 == nil {
		errs.Add(prefix+".value2", "is required for %s", f.Op)
	}

	switch t {
	case models.ColumnTypeNumber:
		low, ok := schema.NumberOf(f.Value)
		if !ok {
			errs.Add(prefix+".value", "must be a number")
		}
		if !ranged || f.Value2 == nil {
			return
		}
		high, ok2 := schema.NumberOf(f.Value2)
		if !ok2 {
			errs.Add(prefix+".value2", "must be a number")
		} else if ok && low > high {
			errs.Add(prefix+".value2", "must not be less than value")
		}

	case models.ColumnTypeDate:
		low, ok := schema.DateOf(f.Value)
		if !ok {
			errs.Add(prefix+".value", "must be a date")
		}
		if !ranged || f.Value2 == nil {
			return
		}
		high, ok2 := schema.DateOf(f.Value2)
		if !ok2 {
			errs.Add(prefix+".value2", "must be a date")
		} else if ok && low.After(high) {
			errs.Add(prefix+".value2", "must not be before value")
		}

	default:
		if ranged && f.Value2 != nil && schema.StringOf(f.Value) > schema.StringOf(f.Value2) {
			errs.Add(prefix+".value2", "must not sort before value")
		}
	}
}

var reducers = []models.AggregationOp{
	models.AggregationSum, models.AggregationAvg, models.AggregationMin,
	models.AggregationMax, models.AggregationCount,
}

func (v *Validator) checkAggregations(rule *models.Rule, dataset *models.Dataset, errs *services.ValidationErrors) {
	outputs := make(map[string]bool, len(rule.Aggregations))

	for i, agg := range rule.Aggregations {
		prefix := fmt.Sprintf("aggregations[%d]", i)

		col, ok := dataset.Column(agg.Field)
		if !ok {
			errs.Add(prefix+".field", "unknown column %q", agg.Field)
		}

		switch {
		case agg.Op.IsGrouping():
			if ok && col.Type != models.ColumnTypeDate {
				errs.Add(prefix+".op", "%s requires a date column", agg.Op)
			}
		case agg.Op == models.AggregationSum || agg.Op == models.AggregationAvg:
			if ok && col.Type != models.ColumnTypeNumber {
				errs.Add(prefix+".op", "%s requires a number column", agg.Op)
			}
		case agg.Op == models.AggregationMin || agg.Op == models.AggregationMax:
			if ok && col.Type != models.ColumnTypeNumber && col.Type != models.ColumnTypeDate {
				errs.Add(prefix+".op", "%s requires a number or date column", agg.Op)
			}
		case !lo.Contains(reducers, agg.Op):
			errs.Add(prefix+".op", "unsupported aggregation %q", agg.Op)
			continue
		}

		name := agg.OutputName()
		if outputs[name] {
			errs.Add(prefix+".alias", "duplicate output column %q", name)
		}
		outputs[name] = true
	}
}

var noiseLevels = []models.NoiseLevel{
	models.NoiseLevelNone, models.NoiseLevelLow, models.NoiseLevelMedium, models.NoiseLevelHigh,
}

func (v *Validator) checkObfuscation(rule *models.Rule, dataset *models.Dataset, errs *services.ValidationErrors) {
	o := rule.Obfuscation
	if o == nil {
		return
	}

	if o.KAnonymity < 0 || o.KAnonymity > v.policy.MaxKAnonymity {
		errs.Add("obfuscation.k_anonymity", "must be between 0 and %d", v.policy.MaxKAnonymity)
	}
	if o.Jitter < 0 {
		errs.Add("obfuscation.jitter", "must not be negative")
	}
	if o.Rounding < 0 {
		errs.Add("obfuscation.rounding", "must not be negative")
	}
	if o.BucketSize < 0 {
		errs.Add("obfuscation.bucket_size", "must not be negative")
	}
	if !lo.Contains(noiseLevels, o.NoiseLevel) {
		errs.Add("obfuscation.noise_level", "must be one of low, medium, high")
	}
	for i, q := range o.QuasiIdentifiers {
		field := fmt.Sprintf("obfuscation.quasi_identifiers[%d]", i)
		if !lo.Contains(rule.Fields, q) {
			errs.Add(field, "%q is not an exposed field", q)
			continue
		}
		// dropPII removes the column before suppression groups on it
		if col, ok := dataset.Column(q); ok && col.PII && o.DropPII {
			errs.Add(field, "%q is PII and dropped before suppression", q)
		}
	}
}
