package nutrition

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-meal-snap/internal/models"
)

func record(id string, meal models.MealType, at time.Time, calories, carbs, protein, fat float64) models.FoodLogRecord {
	items := []models.FoodItem{{
		FoodName: id,
		Calories: calories,
		Nutrients: models.Nutrients{
			Carbohydrates: models.NutrientQuantity{Value: carbs, Unit: "g"},
			Protein:       models.NutrientQuantity{Value: protein, Unit: "g"},
			Fat:           models.NutrientQuantity{Value: fat, Unit: "g"},
		},
	}}
	return models.FoodLogRecord{
		ID:        id,
		UserID:    "user-1",
		MealType:  meal,
		Items:     items,
		Summary:   models.Summarize(items),
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestAggregateLunchAndDinner(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	records := []models.FoodLogRecord{
		record("dinner", models.Dinner, day.Add(19*time.Hour), 700, 80, 35, 25),
		record("lunch", models.Lunch, day.Add(12*time.Hour), 500, 60, 20, 15),
	}

	report := Aggregate("2026-03-01", records, DefaultBalancePolicy())

	assert.Equal(t, 1200.0, report.Daily.TotalCalories)
	assert.Equal(t, 140.0, report.Daily.TotalCarbohydrates.Value)
	assert.Equal(t, 55.0, report.Daily.TotalProtein.Value)
	assert.Equal(t, 40.0, report.Daily.TotalFat.Value)
	assert.Equal(t, 500.0, report.PerMealTypeCalories.Get(models.Lunch))
	assert.Equal(t, 700.0, report.PerMealTypeCalories.Get(models.Dinner))
	assert.Equal(t, 0.0, report.PerMealTypeCalories.Get(models.Breakfast))
	assert.InDelta(t, 41.67, report.Shares.Get(models.Lunch), 0.005)
	assert.InDelta(t, 58.33, report.Shares.Get(models.Dinner), 0.005)
	assert.Equal(t, 0.0, report.Shares.Get(models.Snack))
	assert.Equal(t, 2, report.RecordCount)
	assert.Equal(t, 2, report.MealsEaten)
	assert.Equal(t, BalanceBalanced, report.Balance)
	assert.Len(t, report.ByMealType.Get(models.Lunch), 1)
	assert.Len(t, report.ByMealType.Get(models.Dinner), 1)
	assert.Empty(t, report.ByMealType.Get(models.Breakfast))
}

func TestAggregateEmptyDay(t *testing.T) {
	report := Aggregate("2026-03-01", nil, DefaultBalancePolicy())

	assert.Equal(t, models.Summarize(nil), report.Daily)
	assert.Equal(t, 0, report.RecordCount)
	assert.Equal(t, 0, report.MealsEaten)
	assert.Equal(t, BalanceUnknown, report.Balance)
	for _, m := range models.MealTypes {
		assert.Empty(t, report.ByMealType.Get(m))
		assert.Equal(t, 0.0, report.PerMealTypeCalories.Get(m))
		assert.Equal(t, 0.0, report.Shares.Get(m))
	}
}

func TestAggregateZeroCalorieRecordsHaveNoShare(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	records := []models.FoodLogRecord{record("water", models.Snack, day.Add(23*time.Hour), 0, 0, 0, 0)}

	report := Aggregate("2026-03-01", records, DefaultBalancePolicy())

	assert.Len(t, report.ByMealType.Get(models.Snack), 1)
	assert.Equal(t, 0.0, report.Shares.Get(models.Snack))
	assert.Equal(t, 0, report.MealsEaten)
	assert.Equal(t, BalanceUnknown, report.Balance)
}

func TestAggregateGroupsNewestFirstWithoutMutatingInput(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	records := []models.FoodLogRecord{
		record("early", models.Breakfast, day.Add(6*time.Hour), 200, 20, 10, 5),
		record("late", models.Breakfast, day.Add(9*time.Hour), 300, 30, 10, 5),
		record("mid", models.Breakfast, day.Add(7*time.Hour), 100, 10, 5, 5),
	}
	before := append([]models.FoodLogRecord(nil), records...)

	report := Aggregate("2026-03-01", records, DefaultBalancePolicy())

	group := report.ByMealType.Get(models.Breakfast)
	require.Len(t, group, 3)
	assert.Equal(t, []string{"late", "mid", "early"}, []string{group[0].ID, group[1].ID, group[2].ID})
	assert.Equal(t, before, records)
	assert.Equal(t, 100.0, report.Shares.Get(models.Breakfast))
}

func TestAggregateDoesNotReclassify(t *testing.T) {
	// stored as snack even though it was created at lunch time
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	report := Aggregate("2026-03-01", []models.FoodLogRecord{record("bar", models.Snack, at, 250, 30, 5, 10)}, DefaultBalancePolicy())

	assert.Len(t, report.ByMealType.Get(models.Snack), 1)
	assert.Empty(t, report.ByMealType.Get(models.Lunch))
}

func TestBalancePolicy(t *testing.T) {
	policy := DefaultBalancePolicy()
	summary := func(cal, carbs, protein float64) models.Summary {
		s := models.Summarize(nil)
		s.TotalCalories = cal
		s.TotalCarbohydrates.Value = carbs
		s.TotalProtein.Value = protein
		return s
	}

	assert.Equal(t, BalanceUnknown, policy.Evaluate(summary(0, 0, 80)))
	assert.Equal(t, BalanceBalanced, policy.Evaluate(summary(1800, 200, 50)))
	assert.Equal(t, BalanceNeedsImprovement, policy.Evaluate(summary(1800, 200, 49.9)))
	assert.Equal(t, BalanceNeedsImprovement, policy.Evaluate(summary(100, 66, 60)))

	strict := BalancePolicy{MinProteinGrams: 100, MaxCarbCalorieRatio: 0.65}
	assert.Equal(t, BalanceNeedsImprovement, strict.Evaluate(summary(1800, 200, 80)))
}

func TestShare(t *testing.T) {
	assert.Equal(t, 0.0, Share(10, 0))
	assert.Equal(t, 0.0, Share(10, -5))
	assert.Equal(t, 25.0, Share(25, 100))
}

func TestMealTableJSON(t *testing.T) {
	var table MealTable[float64]
	table[models.Lunch] = 500
	table[models.Dinner] = 700

	encoded, err := json.Marshal(table)
	require.NoError(t, err)
	assert.JSONEq(t, `{"breakfast":0,"lunch":500,"dinner":700,"snack":0}`, string(encoded))

	var decoded MealTable[float64]
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, table, decoded)

	assert.Error(t, json.Unmarshal([]byte(`{"brunch":1}`), &decoded))
}

func TestDailyReportRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	report := Aggregate("2026-03-01", []models.FoodLogRecord{record("rice", models.Lunch, at, 210, 45, 4, 0.5)}, DefaultBalancePolicy())

	encoded, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded DailyReport
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, report.Daily, decoded.Daily)
	assert.Equal(t, report.Shares, decoded.Shares)
	require.Len(t, decoded.ByMealType.Get(models.Lunch), 1)
	assert.Equal(t, "rice", decoded.ByMealType.Get(models.Lunch)[0].ID)
}
