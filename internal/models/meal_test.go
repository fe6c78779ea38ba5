package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMealType(t *testing.T) {
	for _, m := range MealTypes {
		parsed, err := ParseMealType(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)

		parsed, err = ParseMealType(m.Label())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}

	parsed, err := ParseMealType(" Dinner ")
	require.NoError(t, err)
	assert.Equal(t, Dinner, parsed)

	_, err = ParseMealType("brunch")
	assert.Error(t, err)
}

func TestMealTypeJSON(t *testing.T) {
	encoded, err := json.Marshal(struct {
		M MealType `json:"m"`
	}{Snack})
	require.NoError(t, err)
	assert.JSONEq(t, `{"m":"snack"}`, string(encoded))

	var decoded struct {
		M MealType `json:"m"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"m":"점심"}`), &decoded))
	assert.Equal(t, Lunch, decoded.M)

	_, err = json.Marshal(MealType(9))
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	sugars := NutrientQuantity{Value: 8, Unit: "g"}
	items := []FoodItem{
		{Calories: 320, Nutrients: Nutrients{
			Carbohydrates: NutrientQuantity{Value: 25, Unit: "g"},
			Protein:       NutrientQuantity{Value: 18, Unit: "g"},
			Fat:           NutrientQuantity{Value: 12, Unit: "g"},
			Sugars:        &sugars,
		}},
		{Calories: 210, Nutrients: Nutrients{
			Carbohydrates: NutrientQuantity{Value: 45, Unit: "g"},
			Protein:       NutrientQuantity{Value: 4, Unit: "g"},
			Fat:           NutrientQuantity{Value: 0.5, Unit: "g"},
		}},
	}

	s := Summarize(items)
	assert.Equal(t, 530.0, s.TotalCalories)
	assert.Equal(t, NutrientQuantity{Value: 70, Unit: "g"}, s.TotalCarbohydrates)
	assert.Equal(t, NutrientQuantity{Value: 22, Unit: "g"}, s.TotalProtein)
	assert.Equal(t, NutrientQuantity{Value: 12.5, Unit: "g"}, s.TotalFat)

	empty := Summarize(nil)
	assert.Equal(t, 0.0, empty.TotalCalories)
	assert.Equal(t, "g", empty.TotalFat.Unit)

	doubled := s.Add(s)
	assert.Equal(t, 1060.0, doubled.TotalCalories)
	assert.Equal(t, "g", doubled.TotalProtein.Unit)
}
