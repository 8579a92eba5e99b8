package evaluator

import (
	"math"
	"math/rand/v2"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/upb/dataguardian/models"
)

// laplaceScale maps noise levels to the Laplace distribution's b parameter
var laplaceScale = map[models.NoiseLevel]float64{
	models.NoiseLevelLow:    0.5,
	models.NoiseLevelMedium: 1,
	models.NoiseLevelHigh:   2,
}

// dropPII removes every visible column the schema flags as PII
func dropPII(f *frame) {
	drop := make(map[int]bool)
	for i := 0; i < f.visible; i++ {
		if f.pii[i] {
			drop[i] = true
		}
	}
	f.dropColumns(drop)
}

// suppress drops aggregated groups built from fewer than k source rows, or
// row-level equivalence classes smaller than k. Returns the number removed.
func suppress(f *frame, k int, quasi []string) int {
	if f.aggregated {
		kept := f.rows[:0]
		removed := 0
		for i, row := range f.rows {
			if f.counts[i] < k {
				removed++
				continue
			}
			kept = append(kept, row)
		}
		f.rows = kept
		return removed
	}

	// quasi-identifiers no longer visible are ignored; with none left every
	// visible column forms the class key
	idx := make([]int, 0, len(quasi))
	for _, q := range quasi {
		if i := f.index(q); i >= 0 && i < f.visible {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		for i := 0; i < f.visible; i++ {
			idx = append(idx, i)
		}
	}

	keys := make([]string, len(f.rows))
	sizes := make(map[string]int)
	for r, row := range f.rows {
		keys[r] = classKey(row, idx)
		sizes[keys[r]]++
	}

	kept := make([][]any, 0, len(f.rows))
	for r, row := range f.rows {
		if sizes[keys[r]] >= k {
			kept = append(kept, row)
		}
	}
	removed := len(f.rows) - len(kept)
	f.rows = kept
	return removed
}

func classKey(row []any, idx []int) string {
	var b strings.Builder
	for _, i := range idx {
		b.WriteString(cellString(row[i]))
		b.WriteByte(0x1f)
	}
	return b.String()
}

// perturb applies bucketing, jitter, Laplace noise and rounding, in that
// order, to visible numeric cells
func perturb(f *frame, o *models.Obfuscation, rng *rand.Rand) {
	scale := laplaceScale[o.NoiseLevel]
	if o.BucketSize == 0 && o.Jitter == 0 && scale == 0 && o.Rounding == 0 {
		return
	}

	for _, row := range f.rows {
		for i := 0; i < f.visible; i++ {
			if f.types[i] != models.ColumnTypeNumber {
				continue
			}
			v, ok := row[i].(float64)
			if !ok {
				continue
			}
			if o.BucketSize > 0 {
				v = bucket(v, o.BucketSize)
			}
			if o.Jitter > 0 {
				v += (rng.Float64()*2 - 1) * o.Jitter
			}
			if scale > 0 {
				v += laplace(rng, scale)
			}
			if o.Rounding > 0 {
				v = roundTo(v, o.Rounding)
			}
			row[i] = v
		}
	}
}

// bucket floors v to the lower bound of its bucket
func bucket(v, size float64) float64 {
	unit := decimal.NewFromFloat(size)
	out, _ := decimal.NewFromFloat(v).Div(unit).Floor().Mul(unit).Float64()
	return out
}

// roundTo rounds v to the nearest multiple of unit, half away from zero
func roundTo(v, unit float64) float64 {
	u := decimal.NewFromFloat(unit)
	out, _ := decimal.NewFromFloat(v).Div(u).Round(0).Mul(u).Float64()
	return out
}

// laplace draws from Laplace(0, b) by inverse transform sampling
func laplace(rng *rand.Rand, b float64) float64 {
	u := rng.Float64() - 0.5
	if u == 0 || u == -0.5 {
		return 0
	}
	return -b * math.Copysign(1, u) * math.Log(1-2*math.Abs(u))
}
