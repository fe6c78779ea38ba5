package nutrition

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-meal-snap/internal/models"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestDetectShape(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Shape
	}{
		{"canonical", `{"success":true,"data":{"items":[{"foodName":"rice"}]}}`, ShapeCanonical},
		{"canonical with empty items falls through", `{"success":true,"data":{"items":[]},"items":[{}]}`, ShapeItems},
		{"success false is not canonical", `{"success":false,"data":{"items":[{}]}}`, ShapeUnknown},
		{"top level list", `[{"name":"rice"}]`, ShapeList},
		{"empty list", `[]`, ShapeList},
		{"output list", `{"output":[{"name":"rice"}]}`, ShapeOutputList},
		{"output items", `{"output":{"items":[{"name":"rice"}]}}`, ShapeOutputItems},
		{"output text with json", `{"output":"result: {\"name\":\"rice\"}"}`, ShapeOutputText},
		{"output text without json falls through", `{"output":"no idea","name":"rice"}`, ShapeSingleFood},
		{"output text with empty json falls through", `{"output":"done {}","data":[{"name":"rice"}]}`, ShapeDataList},
		{"output text with scalar list falls through", `{"output":"note: [1]","name":"rice"}`, ShapeSingleFood},
		{"output text too deeply nested", `{"output":"{\"output\":\"{\\\"output\\\":\\\"[{}]\\\"}\"}"}`, ShapeUnknown},
		{"output object without items falls through", `{"output":{"foo":1},"data":[{}]}`, ShapeDataList},
		{"output wins over data", `{"output":[],"data":[{"name":"rice"}]}`, ShapeOutputList},
		{"data list", `{"data":[{"name":"rice"}]}`, ShapeDataList},
		{"data object is not data list", `{"data":{"name":"rice"}}`, ShapeUnknown},
		{"items", `{"items":[{"name":"rice"}]}`, ShapeItems},
		{"null items ignored", `{"items":null,"foodName":"rice"}`, ShapeSingleFood},
		{"single food by name", `{"name":"rice"}`, ShapeSingleFood},
		{"single food by foodName", `{"foodName":"rice"}`, ShapeSingleFood},
		{"blank name", `{"name":"  "}`, ShapeUnknown},
		{"unrelated object", `{"foo":"bar"}`, ShapeUnknown},
		{"null", `null`, ShapeUnknown},
		{"string", `"rice"`, ShapeUnknown},
		{"number", `42`, ShapeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectShape(decode(t, tt.payload)))
		})
	}
}

func TestNormalizeArrayShape(t *testing.T) {
	got := Normalize(decode(t, `[{"name":"rice","calories":210,"carbohydrates":45}]`))

	require.True(t, got.Success)
	require.Len(t, got.Data.Items, 1)
	item := got.Data.Items[0]
	assert.Equal(t, "rice", item.FoodName)
	assert.Equal(t, 210.0, item.Calories)
	assert.Equal(t, 45.0, item.Nutrients.Carbohydrates.Value)
	assert.Equal(t, "g", item.Nutrients.Carbohydrates.Unit)
	assert.Equal(t, 0.0, item.Nutrients.Protein.Value)
	assert.Equal(t, 0.0, item.Nutrients.Fat.Value)
	assert.Nil(t, item.Nutrients.Sugars)
	assert.Nil(t, item.Nutrients.Sodium)
	assert.Equal(t, listConfidence, item.Confidence)
	assert.Equal(t, DefaultQuantity, item.Quantity)
	assert.Equal(t, 210.0, got.Data.Summary.TotalCalories)
	assert.Equal(t, 45.0, got.Data.Summary.TotalCarbohydrates.Value)
	assert.False(t, got.Data.Degraded)
}

func TestNormalizeUnrecognizedShape(t *testing.T) {
	got := Normalize(decode(t, `{"foo":"bar"}`))

	require.Len(t, got.Data.Items, 1)
	item := got.Data.Items[0]
	assert.Equal(t, NeedsAnalysisName, item.FoodName)
	assert.Equal(t, 0.0, item.Confidence)
	assert.Equal(t, 0.0, item.Calories)
	assert.Equal(t, 0.0, item.Nutrients.Carbohydrates.Value)
	assert.Equal(t, 0.0, item.Nutrients.Protein.Value)
	assert.Equal(t, 0.0, item.Nutrients.Fat.Value)
	assert.Equal(t, 0.0, got.Data.Summary.TotalCalories)
	assert.True(t, got.Success)
	assert.True(t, got.Data.Degraded)
}

func TestNormalizeFieldFallbacks(t *testing.T) {
	got := Normalize(decode(t, `[
		{"foodName":"kimchi stew","amount":"1 bowl","calories":"320","protein":18,"sodium":1200},
		{"calories":-40,"confidence":1.7,"quantity":2},
		null,
		"garbage"
	]`))

	require.Len(t, got.Data.Items, 4)

	first := got.Data.Items[0]
	assert.Equal(t, "kimchi stew", first.FoodName)
	assert.Equal(t, "1 bowl", first.Quantity)
	assert.Equal(t, 320.0, first.Calories)
	assert.Equal(t, 18.0, first.Nutrients.Protein.Value)
	require.NotNil(t, first.Nutrients.Sodium)
	assert.Equal(t, models.NutrientQuantity{Value: 1200, Unit: "mg"}, *first.Nutrients.Sodium)
	assert.Nil(t, first.Nutrients.Sugars)

	second := got.Data.Items[1]
	assert.Equal(t, "food 2", second.FoodName)
	assert.Equal(t, 0.0, second.Calories)
	assert.Equal(t, 1.0, second.Confidence)
	assert.Equal(t, "2", second.Quantity)

	assert.Equal(t, "food 3", got.Data.Items[2].FoodName)
	assert.Equal(t, "food 4", got.Data.Items[3].FoodName)
	assert.Equal(t, DefaultQuantity, got.Data.Items[3].Quantity)
	assert.Equal(t, 320.0, got.Data.Summary.TotalCalories)
}

func TestNormalizeNestedShapes(t *testing.T) {
	t.Run("output items with nested nutrients", func(t *testing.T) {
		got := Normalize(decode(t, `{"output":{"items":[{"foodName":"pepperoni pizza","calories":480,
			"nutrients":{"carbohydrates":{"value":52,"unit":"g"},"sugars":{"value":4,"unit":"g"}}}]}}`))
		require.Len(t, got.Data.Items, 1)
		item := got.Data.Items[0]
		assert.Equal(t, "pepperoni pizza", item.FoodName)
		assert.Equal(t, 52.0, item.Nutrients.Carbohydrates.Value)
		require.NotNil(t, item.Nutrients.Sugars)
		assert.Equal(t, 4.0, item.Nutrients.Sugars.Value)
	})

	t.Run("output text with fenced json", func(t *testing.T) {
		got := Normalize(decode(t, `{"output":"Here is the analysis:\n`+"```json"+`\n[{\"name\":\"rice\",\"calories\":210}]\n`+"```"+`"}`))
		require.Len(t, got.Data.Items, 1)
		assert.Equal(t, "rice", got.Data.Items[0].FoodName)
		assert.Equal(t, 210.0, got.Data.Summary.TotalCalories)
	})

	t.Run("data list", func(t *testing.T) {
		got := Normalize(decode(t, `{"data":[{"name":"caesar salad","calories":180},{"name":"water"}]}`))
		require.Len(t, got.Data.Items, 2)
		assert.Equal(t, 180.0, got.Data.Summary.TotalCalories)
	})

	t.Run("single food", func(t *testing.T) {
		got := Normalize(decode(t, `{"name":"apple","calories":95,"sugars":19}`))
		require.Len(t, got.Data.Items, 1)
		item := got.Data.Items[0]
		assert.Equal(t, singleConfidence, item.Confidence)
		require.NotNil(t, item.Nutrients.Sugars)
		assert.Equal(t, 19.0, item.Nutrients.Sugars.Value)
	})

	t.Run("empty json in output text falls through to data", func(t *testing.T) {
		got := Normalize(decode(t, `{"output":"analysis done {}","data":[{"name":"rice","calories":210}]}`))
		assert.False(t, got.Data.Degraded)
		require.Len(t, got.Data.Items, 1)
		assert.Equal(t, "rice", got.Data.Items[0].FoodName)
		assert.Equal(t, 210.0, got.Data.Summary.TotalCalories)
	})

	t.Run("scalar json in output text falls through to single food", func(t *testing.T) {
		got := Normalize(decode(t, `{"output":"note: [1]","name":"rice","calories":210}`))
		require.Len(t, got.Data.Items, 1)
		assert.Equal(t, "rice", got.Data.Items[0].FoodName)
		assert.Equal(t, singleConfidence, got.Data.Items[0].Confidence)
	})

	t.Run("output list that is empty", func(t *testing.T) {
		got := Normalize(decode(t, `{"output":[],"data":[{"name":"rice"}]}`))
		assert.True(t, got.Data.Degraded)
		assert.Equal(t, NeedsAnalysisName, got.Data.Items[0].FoodName)
	})
}

func TestNormalizeRecomputesUpstreamSummary(t *testing.T) {
	got := Normalize(decode(t, `{"success":true,"data":{
		"items":[{"foodName":"rice","calories":210,"nutrients":{"carbohydrates":{"value":45,"unit":"g"}}},
		         {"foodName":"stew","calories":320,"nutrients":{"protein":{"value":18,"unit":"g"}}}],
		"summary":{"totalCalories":9999,"totalCarbohydrates":{"value":1,"unit":"g"}}}}`))

	assert.Equal(t, 530.0, got.Data.Summary.TotalCalories)
	assert.Equal(t, 45.0, got.Data.Summary.TotalCarbohydrates.Value)
	assert.Equal(t, 18.0, got.Data.Summary.TotalProtein.Value)
}

func TestNormalizeNeverFailsOnGarbage(t *testing.T) {
	inputs := []string{
		`null`, `{}`, `[]`, `""`, `0`, `true`, `"{\"name\":1"`,
		`{"success":true}`, `{"success":true,"data":null}`, `{"success":"yes","data":{"items":"x"}}`,
		`{"output":null}`, `{"output":"{not json}"}`, `{"output":{"items":null}}`,
		`{"data":[]}`, `{"items":[]}`, `{"items":"oops"}`, `{"items":{"name":"rice"}}`,
		`{"a":{"b":{"c":{"d":[[[[{"e":null}]]]]}}}}`,
		`[[1,2],[3]]`, `[{"nutrients":"none","calories":{"value":"x"}}]`,
		`{"output":"{\"output\":\"{\\\"output\\\":\\\"[{}]\\\"}\"}"}`,
		`[{"name":"a","calories":1e308},{"name":"b","calories":1e308}]`,
		`[{"name":"a","protein":1e308,"fat":{"value":1e308},"sodium":1e308},{"name":"b","protein":1e308,"fat":1e308}]`,
	}
	for _, raw := range inputs {
		t.Run(raw, func(t *testing.T) {
			var got models.AnalysisResult
			require.NotPanics(t, func() { got = Normalize(decode(t, raw)) })
			assert.True(t, got.Success)
			assert.GreaterOrEqual(t, len(got.Data.Items), 1)
			assert.Equal(t, models.Summarize(got.Data.Items), got.Data.Summary)
			_, err := json.Marshal(got)
			assert.NoError(t, err)
		})
	}

	t.Run("huge values are capped", func(t *testing.T) {
		got := Normalize(decode(t, `[{"name":"a","calories":1e308,"protein":1e308},{"name":"b","calories":1e308}]`))
		assert.Equal(t, maxAmount, got.Data.Items[0].Calories)
		assert.Equal(t, maxAmount, got.Data.Items[0].Nutrients.Protein.Value)
		assert.Equal(t, 2*maxAmount, got.Data.Summary.TotalCalories)
	})

	t.Run("non-json go values", func(t *testing.T) {
		for _, v := range []any{struct{}{}, make(chan int), []string{"rice"}, map[int]any{1: "x"}} {
			got := Normalize(v)
			assert.Len(t, got.Data.Items, 1)
		}
	})
}

func TestNormalizeSummaryInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		n := 1 + rng.Intn(6)
		list := make([]any, 0, n)
		var cal, carb, prot, fat float64
		for i := 0; i < n; i++ {
			c, cb, p, f := rng.Float64()*900, rng.Float64()*120, rng.Float64()*60, rng.Float64()*50
			cal += c
			carb += cb
			prot += p
			fat += f
			list = append(list, map[string]any{"calories": c, "carbohydrates": cb, "protein": p, "fat": f})
		}
		got := Normalize(list)
		assert.Equal(t, cal, got.Data.Summary.TotalCalories)
		assert.Equal(t, carb, got.Data.Summary.TotalCarbohydrates.Value)
		assert.Equal(t, prot, got.Data.Summary.TotalProtein.Value)
		assert.Equal(t, fat, got.Data.Summary.TotalFat.Value)
	}
}

func TestNormalizeIsAFixedPoint(t *testing.T) {
	inputs := []string{
		`[{"name":"rice","calories":210,"carbohydrates":45}]`,
		`{"foo":"bar"}`,
		`{"name":"apple","calories":95.5,"sugars":19,"sodium":{"value":2,"unit":"mg"}}`,
		`{"output":{"items":[{"foodName":"pizza","confidence":0.92,"quantity":"2 slices","calories":480}]}}`,
		`[{"confidence":0},{"amount":150}]`,
	}
	for _, raw := range inputs {
		t.Run(raw, func(t *testing.T) {
			first := Normalize(decode(t, raw))
			encoded, err := json.Marshal(first)
			require.NoError(t, err)

			second := Normalize(decode(t, string(encoded)))
			assert.Equal(t, first, second)
		})
	}
}
