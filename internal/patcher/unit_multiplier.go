package patcher

import (
	"context"
	"math"

	"github.com/juju/collections/set"

	"github.com/calvinalkan/twpatch/internal/table"
)

const (
	mainUnitsPrefix = "db/main_units_tables/"
	landUnitsPrefix = "db/land_units_tables/"

	colNumMen    = "num_men"
	colLandUnit  = "land_unit"
	colKey       = "key"
	colHitPoints = "bonus_hit_points"
)

// multiplyUnits scales unit sizes by multiplier. Units of more than one
// entity get more men; single entities keep one and get their land unit's
// bonus hit points scaled instead.
func multiplyUnits(multiplier float64) Pass {
	return func(ctx context.Context, in passInput) error {
		single := set.NewStrings()

		err := editTables(ctx, in, []string{mainUnitsPrefix}, func(t *table.Table) {
			numMen := t.Definition.ColumnIndex(colNumMen)
			landUnit := t.Definition.ColumnIndex(colLandUnit)

			if numMen < 0 {
				return
			}

			for _, row := range t.Rows {
				men, ok := row[numMen].(int64)
				if !ok {
					continue
				}

				if men > 1 {
					row[numMen] = max(scale(men, multiplier), 1)

					continue
				}

				if landUnit >= 0 {
					if key, ok := row[landUnit].(string); ok {
						single.Add(key)
					}
				}
			}
		})
		if err != nil {
			return err
		}

		logger.Debugf("unit multiplier %v: %d single-entity land units", multiplier, single.Size())

		return editTables(ctx, in, []string{landUnitsPrefix}, func(t *table.Table) {
			key := t.Definition.ColumnIndex(colKey)
			hitPoints := t.Definition.ColumnIndex(colHitPoints)

			if key < 0 || hitPoints < 0 {
				return
			}

			for _, row := range t.Rows {
				name, ok := row[key].(string)
				if !ok || !single.Contains(name) {
					continue
				}

				if hp, ok := row[hitPoints].(int64); ok {
					row[hitPoints] = scale(hp, multiplier)
				}
			}
		})
	}
}

// scale multiplies n, rounding to the nearest integer.
func scale(n int64, multiplier float64) int64 {
	return int64(math.Round(float64(n) * multiplier))
}
