// internal/nutrition/classify.go
package nutrition

import (
	"time"

	"mcp-meal-snap/internal/models"
)

// ClassifyHour maps an hour of the day to a meal slot:
// [4,11) breakfast, [11,17) lunch, [17,22) dinner, anything else snack.
// Hours outside 0-23 wrap around the clock.
func ClassifyHour(hour int) models.MealType {
	hour = ((hour % 24) + 24) % 24
	switch {
	case hour >= 4 && hour < 11:
		return models.Breakfast
	case hour >= 11 && hour < 17:
		return models.Lunch
	case hour >= 17 && hour < 22:
		return models.Dinner
	default:
		return models.Snack
	}
}

// Classify uses the hour of t in t's own location.
func Classify(t time.Time) models.MealType {
	return ClassifyHour(t.Hour())
}

// ClassifyIn converts t to loc before classifying. A nil loc keeps t as is.
func ClassifyIn(t time.Time, loc *time.Location) models.MealType {
	if loc != nil {
		t = t.In(loc)
	}
	return Classify(t)
}
