// internal/models/meal.go
package models

import (
	"fmt"
	"strings"
	"time"
)

type NutrientQuantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Nutrients holds the per-item breakdown. Sugars and Sodium are nil when the
// analysis did not report them; nil means unknown, not zero.
type Nutrients struct {
	Carbohydrates NutrientQuantity  `json:"carbohydrates"`
	Protein       NutrientQuantity  `json:"protein"`
	Fat           NutrientQuantity  `json:"fat"`
	Sugars        *NutrientQuantity `json:"sugars,omitempty"`
	Sodium        *NutrientQuantity `json:"sodium,omitempty"`
}

type FoodItem struct {
	FoodName   string    `json:"foodName"`
	Confidence float64   `json:"confidence"`
	Quantity   string    `json:"quantity"`
	Calories   float64   `json:"calories"`
	Nutrients  Nutrients `json:"nutrients"`
}

type Summary struct {
	TotalCalories      float64          `json:"totalCalories"`
	TotalCarbohydrates NutrientQuantity `json:"totalCarbohydrates"`
	TotalProtein       NutrientQuantity `json:"totalProtein"`
	TotalFat           NutrientQuantity `json:"totalFat"`
}

// Summarize derives a Summary from items. It is the only way summaries are
// built, so totals always equal the per-item sums.
func Summarize(items []FoodItem) Summary {
	s := Summary{
		TotalCarbohydrates: NutrientQuantity{Unit: "g"},
		TotalProtein:       NutrientQuantity{Unit: "g"},
		TotalFat:           NutrientQuantity{Unit: "g"},
	}
	for _, item := range items {
		s.TotalCalories += item.Calories
		s.TotalCarbohydrates.Value += item.Nutrients.Carbohydrates.Value
		s.TotalProtein.Value += item.Nutrients.Protein.Value
		s.TotalFat.Value += item.Nutrients.Fat.Value
	}
	return s
}

// Add returns the element-wise sum of two summaries.
func (s Summary) Add(o Summary) Summary {
	s.TotalCalories += o.TotalCalories
	s.TotalCarbohydrates.Value += o.TotalCarbohydrates.Value
	s.TotalProtein.Value += o.TotalProtein.Value
	s.TotalFat.Value += o.TotalFat.Value
	return s
}

type AnalysisData struct {
	Items   []FoodItem `json:"items"`
	Summary Summary    `json:"summary"`
	// Degraded marks output produced because the analysis payload could not be
	// interpreted at all, as opposed to a genuine low-confidence answer.
	Degraded bool `json:"degraded,omitempty"`
}

type AnalysisResult struct {
	Success bool         `json:"success"`
	Data    AnalysisData `json:"data"`
}

type MealType int

const (
	Breakfast MealType = iota
	Lunch
	Dinner
	Snack
)

// NumMealTypes is the size of tables indexed by MealType.
const NumMealTypes = 4

// MealTypes lists every meal type in time-of-day order.
var MealTypes = [NumMealTypes]MealType{Breakfast, Lunch, Dinner, Snack}

var mealTypeNames = [NumMealTypes]string{"breakfast", "lunch", "dinner", "snack"}

var mealTypeLabels = [NumMealTypes]string{"아침", "점심", "저녁", "간식"}

func (m MealType) Valid() bool {
	return m >= Breakfast && m <= Snack
}

func (m MealType) String() string {
	if !m.Valid() {
		return fmt.Sprintf("MealType(%d)", int(m))
	}
	return mealTypeNames[m]
}

// Label returns the display label used by the Korean-language frontend.
func (m MealType) Label() string {
	if !m.Valid() {
		return ""
	}
	return mealTypeLabels[m]
}

// ParseMealType accepts the canonical English names and the Korean labels.
func ParseMealType(s string) (MealType, error) {
	s = strings.TrimSpace(s)
	for i := range mealTypeNames {
		if strings.EqualFold(s, mealTypeNames[i]) || s == mealTypeLabels[i] {
			return MealType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown meal type %q", s)
}

func (m MealType) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid meal type %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *MealType) UnmarshalText(text []byte) error {
	parsed, err := ParseMealType(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// FoodLogRecord is one persisted meal. It is built once and never modified.
type FoodLogRecord struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	MealType  MealType   `json:"mealType"`
	Items     []FoodItem `json:"items"`
	Summary   Summary    `json:"summary"`
	ImageURL  string     `json:"imageUrl,omitempty"`
	Degraded  bool       `json:"degraded,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
