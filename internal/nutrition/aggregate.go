// internal/nutrition/aggregate.go
package nutrition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"mcp-meal-snap/internal/models"
)

// MealTable holds one value per meal type, indexed by models.MealType.
type MealTable[T any] [models.NumMealTypes]T

func (t MealTable[T]) Get(m models.MealType) T {
	var zero T
	if !m.Valid() {
		return zero
	}
	return t[m]
}

// MarshalJSON encodes the table as an object keyed by meal type name, in
// time-of-day order.
func (t MealTable[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range models.MealTypes {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(m.String())
		val, err := json.Marshal(t[m])
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", m, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *MealTable[T]) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, val := range raw {
		m, err := models.ParseMealType(key)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(val, &t[m]); err != nil {
			return fmt.Errorf("unmarshal %s: %w", m, err)
		}
	}
	return nil
}

type Balance string

const (
	BalanceUnknown          Balance = "unknown"
	BalanceBalanced         Balance = "balanced"
	BalanceNeedsImprovement Balance = "needs_improvement"
)

// BalancePolicy is a display heuristic, not a dietary rule. A day is balanced
// when protein reaches MinProteinGrams and carbohydrate grams stay at or under
// MaxCarbCalorieRatio times the day's calories.
type BalancePolicy struct {
	MinProteinGrams     float64 `yaml:"min_protein_grams" json:"minProteinGrams"`
	MaxCarbCalorieRatio float64 `yaml:"max_carb_calorie_ratio" json:"maxCarbCalorieRatio"`
}

func DefaultBalancePolicy() BalancePolicy {
	return BalancePolicy{
		MinProteinGrams:     50,
		MaxCarbCalorieRatio: 0.65,
	}
}

func (p BalancePolicy) Evaluate(s models.Summary) Balance {
	if s.TotalCalories <= 0 {
		return BalanceUnknown
	}
	if s.TotalProtein.Value >= p.MinProteinGrams &&
		s.TotalCarbohydrates.Value <= s.TotalCalories*p.MaxCarbCalorieRatio {
		return BalanceBalanced
	}
	return BalanceNeedsImprovement
}

type DailyReport struct {
	Date                string                            `json:"date"`
	ByMealType          MealTable[[]models.FoodLogRecord] `json:"byMealType"`
	Daily               models.Summary                    `json:"daily"`
	PerMealTypeCalories MealTable[float64]                `json:"perMealTypeCalories"`
	Shares              MealTable[float64]                `json:"shares"`
	RecordCount         int                               `json:"recordCount"`
	MealsEaten          int                               `json:"mealsEaten"`
	Balance             Balance                           `json:"balance"`
}

// Share returns part as a percentage of total, or 0 when total is not positive.
func Share(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return part / total * 100
}

// Aggregate projects one user's records for one date into a DailyReport.
// Records are grouped by their stored meal type, newest first within a group.
// records is not modified.
func Aggregate(date string, records []models.FoodLogRecord, policy BalancePolicy) DailyReport {
	report := DailyReport{
		Date:        date,
		Daily:       models.Summarize(nil),
		RecordCount: len(records),
	}
	for _, m := range models.MealTypes {
		report.ByMealType[m] = []models.FoodLogRecord{}
	}

	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b models.FoodLogRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	for _, rec := range sorted {
		report.Daily = report.Daily.Add(rec.Summary)
		if !rec.MealType.Valid() {
			continue
		}
		report.ByMealType[rec.MealType] = append(report.ByMealType[rec.MealType], rec)
		report.PerMealTypeCalories[rec.MealType] += rec.Summary.TotalCalories
	}

	for _, m := range models.MealTypes {
		report.Shares[m] = Share(report.PerMealTypeCalories[m], report.Daily.TotalCalories)
		if report.PerMealTypeCalories[m] > 0 {
			report.MealsEaten++
		}
	}
	report.Balance = policy.Evaluate(report.Daily)
	return report
}
