// internal/analysis/mock.go
package analysis

import "strings"

func nutrients(carbs, protein, fat, sugars, sodium float64) map[string]any {
	return map[string]any{
		"carbohydrates": map[string]any{"value": carbs, "unit": "g"},
		"protein":       map[string]any{"value": protein, "unit": "g"},
		"fat":           map[string]any{"value": fat, "unit": "g"},
		"sugars":        map[string]any{"value": sugars, "unit": "g"},
		"sodium":        map[string]any{"value": sodium, "unit": "mg"},
	}
}

func food(name string, confidence float64, quantity string, calories float64, n map[string]any) map[string]any {
	return map[string]any{
		"foodName":   name,
		"confidence": confidence,
		"quantity":   quantity,
		"calories":   calories,
		"nutrients":  n,
	}
}

var mockMeals = []struct {
	keyword string
	items   func() []any
}{
	{"kimchi", func() []any {
		return []any{
			food("kimchi stew", 0.95, "1 serving", 320, nutrients(25, 18, 12, 8, 1200)),
			food("steamed rice", 0.98, "1 bowl", 210, nutrients(45, 4, 0.5, 0.5, 2)),
		}
	}},
	{"pizza", func() []any {
		return []any{food("pepperoni pizza", 0.92, "2 slices", 480, nutrients(52, 22, 24, 4, 980))}
	}},
	{"salad", func() []any {
		return []any{food("caesar salad", 0.88, "1 plate", 180, nutrients(12, 8, 14, 3, 420))}
	}},
}

// MockAnalysis returns a canned canonical-shaped analysis picked by a keyword
// in the file name. It stands in for the webhook in development.
func MockAnalysis(filename string) any {
	lower := strings.ToLower(filename)
	items := []any{food("analyzed meal", 0.85, "1 serving", 350, nutrients(35, 15, 18, 5, 650))}
	for _, m := range mockMeals {
		if strings.Contains(lower, m.keyword) {
			items = m.items()
			break
		}
	}
	return map[string]any{
		"success": true,
		"data":    map[string]any{"items": items},
	}
}
