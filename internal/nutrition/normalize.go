// internal/nutrition/normalize.go

// Package nutrition turns analysis payloads into canonical nutrition records
// and projects stored records into daily summaries. Nothing in this package
// performs I/O.
package nutrition

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"mcp-meal-snap/internal/models"
)

const (
	NeedsAnalysisName = "needs analysis"
	PendingQuantity   = "pending analysis"
	DefaultQuantity   = "1 serving"

	listConfidence   = 0.85
	singleConfidence = 0.9

	// embedded JSON inside an output string is unwrapped at most this many times
	maxTextDepth = 2

	// per-item calories and nutrient values are capped here so that totals
	// over any number of items and days stay finite
	maxAmount = 1e9
)

// Shape is the detected layout of an analysis payload. Detection order is the
// declaration order below, first match wins.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeCanonical
	ShapeList
	ShapeOutputList
	ShapeOutputItems
	ShapeOutputText
	ShapeDataList
	ShapeItems
	ShapeSingleFood
)

var shapeNames = map[Shape]string{
	ShapeUnknown:     "unknown",
	ShapeCanonical:   "canonical",
	ShapeList:        "list",
	ShapeOutputList:  "output_list",
	ShapeOutputItems: "output_items",
	ShapeOutputText:  "output_text",
	ShapeDataList:    "data_list",
	ShapeItems:       "items",
	ShapeSingleFood:  "single_food",
}

func (s Shape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// DetectShape classifies a decoded JSON value. A text output only counts when
// the JSON embedded in it describes food; otherwise the remaining fields of
// the payload are tried.
func DetectShape(payload any) Shape {
	return detectShape(payload, 0)
}

func detectShape(payload any, depth int) Shape {
	switch v := payload.(type) {
	case []any:
		return ShapeList
	case map[string]any:
		if isCanonical(v) {
			return ShapeCanonical
		}
		switch out := v["output"].(type) {
		case []any:
			return ShapeOutputList
		case map[string]any:
			if out["items"] != nil {
				return ShapeOutputItems
			}
		case string:
			if _, ok := outputText(out, depth); ok {
				return ShapeOutputText
			}
		}
		if _, ok := v["data"].([]any); ok {
			return ShapeDataList
		}
		if v["items"] != nil {
			return ShapeItems
		}
		if text(v["name"]) != "" || text(v["foodName"]) != "" {
			return ShapeSingleFood
		}
	}
	return ShapeUnknown
}

func isCanonical(v map[string]any) bool {
	if ok, _ := v["success"].(bool); !ok {
		return false
	}
	data, _ := v["data"].(map[string]any)
	items, _ := data["items"].([]any)
	return len(items) > 0
}

// Normalize converts any decoded analysis payload into a canonical result.
// It never fails: payloads that cannot be interpreted produce Sentinel().
// The summary is always recomputed from the items.
func Normalize(payload any) models.AnalysisResult {
	result, _ := normalize(payload, 0)
	return result
}

// normalize reports false when it had to fall back to the sentinel.
func normalize(payload any, depth int) (models.AnalysisResult, bool) {
	var (
		items    []models.FoodItem
		degraded bool
	)
	obj, _ := payload.(map[string]any)

	switch detectShape(payload, depth) {
	case ShapeCanonical:
		data, _ := obj["data"].(map[string]any)
		items = mapItems(data["items"], listConfidence)
		degraded, _ = data["degraded"].(bool)
	case ShapeList:
		items = mapItems(payload, listConfidence)
	case ShapeOutputList:
		items = mapItems(obj["output"], listConfidence)
	case ShapeOutputItems:
		out, _ := obj["output"].(map[string]any)
		items = mapItems(out["items"], listConfidence)
	case ShapeOutputText:
		s, _ := obj["output"].(string)
		return outputText(s, depth)
	case ShapeDataList:
		items = mapItems(obj["data"], listConfidence)
	case ShapeItems:
		items = mapItems(obj["items"], listConfidence)
	case ShapeSingleFood:
		items = []models.FoodItem{mapItem(obj, 0, singleConfidence)}
	}

	if len(items) == 0 {
		return Sentinel(), false
	}
	return models.AnalysisResult{
		Success: true,
		Data: models.AnalysisData{
			Items:    items,
			Summary:  models.Summarize(items),
			Degraded: degraded,
		},
	}, true
}

// outputText normalizes the JSON embedded in a free text answer. It fails
// when nesting is too deep, when the text holds no object, or when the
// embedded document cannot be read.
func outputText(s string, depth int) (models.AnalysisResult, bool) {
	if depth >= maxTextDepth {
		return models.AnalysisResult{}, false
	}
	doc, ok := extractJSON(s)
	if !ok || !hasObject(doc) {
		return models.AnalysisResult{}, false
	}
	return normalize(doc, depth+1)
}

// hasObject reports whether v is an object or a list holding at least one.
func hasObject(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		return true
	case []any:
		for _, e := range t {
			if _, ok := e.(map[string]any); ok {
				return true
			}
		}
	}
	return false
}

// Sentinel is the result used when nothing usable could be read from a payload.
func Sentinel() models.AnalysisResult {
	items := []models.FoodItem{{
		FoodName:   NeedsAnalysisName,
		Confidence: 0,
		Quantity:   PendingQuantity,
		Calories:   0,
		Nutrients: models.Nutrients{
			Carbohydrates: models.NutrientQuantity{Unit: "g"},
			Protein:       models.NutrientQuantity{Unit: "g"},
			Fat:           models.NutrientQuantity{Unit: "g"},
		},
	}}
	return models.AnalysisResult{
		Success: true,
		Data: models.AnalysisData{
			Items:    items,
			Summary:  models.Summarize(items),
			Degraded: true,
		},
	}
}

// mapItems maps a list field element by element. A lone object is treated as
// a one-element list; anything else yields no items.
func mapItems(v any, defaultConfidence float64) []models.FoodItem {
	switch list := v.(type) {
	case []any:
		items := make([]models.FoodItem, 0, len(list))
		for i, src := range list {
			items = append(items, mapItem(src, i, defaultConfidence))
		}
		return items
	case map[string]any:
		return []models.FoodItem{mapItem(list, 0, defaultConfidence)}
	}
	return nil
}

// mapItem builds a FoodItem from a loosely shaped object. Missing or
// mistyped fields resolve to defaults. index is the 0-based position used
// for synthesized names.
func mapItem(src any, index int, defaultConfidence float64) models.FoodItem {
	obj, _ := src.(map[string]any)

	name := firstText(obj, "name", "foodName")
	if name == "" {
		name = fmt.Sprintf("food %d", index+1)
	}

	confidence := defaultConfidence
	if v, ok := number(obj["confidence"]); ok {
		confidence = math.Min(math.Max(v, 0), 1)
	}

	quantity := firstText(obj, "quantity", "amount")
	if quantity == "" {
		quantity = DefaultQuantity
	}

	calories, _ := number(obj["calories"])

	item := models.FoodItem{
		FoodName:   name,
		Confidence: confidence,
		Quantity:   quantity,
		Calories:   amount(calories),
	}
	item.Nutrients.Carbohydrates, _ = nutrient(obj, "carbohydrates", "g")
	item.Nutrients.Protein, _ = nutrient(obj, "protein", "g")
	item.Nutrients.Fat, _ = nutrient(obj, "fat", "g")
	if q, ok := nutrient(obj, "sugars", "g"); ok {
		item.Nutrients.Sugars = &q
	}
	if q, ok := nutrient(obj, "sodium", "mg"); ok {
		item.Nutrients.Sodium = &q
	}
	return item
}

// nutrient looks in obj.nutrients[key] first, then obj[key]. The returned
// quantity always carries a unit; ok reports whether a value was found.
func nutrient(obj map[string]any, key, unit string) (models.NutrientQuantity, bool) {
	if nested, isMap := obj["nutrients"].(map[string]any); isMap {
		if q, ok := quantity(nested[key], unit); ok {
			return q, true
		}
	}
	if q, ok := quantity(obj[key], unit); ok {
		return q, true
	}
	return models.NutrientQuantity{Unit: unit}, false
}

func quantity(v any, unit string) (models.NutrientQuantity, bool) {
	if m, isMap := v.(map[string]any); isMap {
		value, ok := number(m["value"])
		if !ok {
			return models.NutrientQuantity{}, false
		}
		if u := text(m["unit"]); u != "" {
			unit = u
		}
		return models.NutrientQuantity{Value: amount(value), Unit: unit}, true
	}
	value, ok := number(v)
	if !ok {
		return models.NutrientQuantity{}, false
	}
	return models.NutrientQuantity{Value: amount(value), Unit: unit}, true
}

// number accepts JSON numbers in any decoded form, plus numeric strings.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// amount clamps a calorie or nutrient value into [0, maxAmount].
func amount(f float64) float64 {
	return math.Min(math.Max(f, 0), maxAmount)
}

// text returns a trimmed string for string or numeric values, "" otherwise.
func text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64, json.Number, int, int64:
		f, ok := number(t)
		if !ok {
			return ""
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

func firstText(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := text(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

// extractJSON pulls the outermost JSON object or array out of free text,
// e.g. a model answer wrapped in prose or code fences.
func extractJSON(s string) (any, bool) {
	pairs := [][2]string{{"{", "}"}, {"[", "]"}}
	if arr := strings.Index(s, "["); arr != -1 {
		if obj := strings.Index(s, "{"); obj == -1 || arr < obj {
			pairs[0], pairs[1] = pairs[1], pairs[0]
		}
	}
	for _, pair := range pairs {
		start := strings.Index(s, pair[0])
		end := strings.LastIndex(s, pair[1])
		if start == -1 || end <= start {
			continue
		}
		var doc any
		if err := json.Unmarshal([]byte(s[start:end+1]), &doc); err == nil {
			return doc, true
		}
	}
	return nil, false
}
