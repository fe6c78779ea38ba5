// internal/service/record.go

// Package service ties image analysis, normalization, storage and reporting
// together behind the operations the transports expose.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"mcp-meal-snap/internal/analysis"
	"mcp-meal-snap/internal/logger"
	"mcp-meal-snap/internal/models"
	"mcp-meal-snap/internal/nutrition"
)

const (
	DefaultMaxImageSize = 10 << 20
	dateLayout          = "2006-01-02"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type Analyzer interface {
	Analyze(ctx context.Context, img analysis.Image) (any, error)
}

type RecordStore interface {
	SaveRecord(ctx context.Context, rec *models.FoodLogRecord) error
	GetRecords(ctx context.Context, userID string, from, to time.Time, limit int) ([]models.FoodLogRecord, error)
}

type ImageStore interface {
	Put(ctx context.Context, userID, filename, contentType string, data []byte) (string, error)
}

// ReportCache stores daily reports. Every Invalidate bumps the day's
// version; Set stores the report only while the version still matches the
// one Get returned, so a report computed before a concurrent save is dropped.
type ReportCache interface {
	Get(ctx context.Context, userID, date string) (report *nutrition.DailyReport, version int64, ok bool, err error)
	Set(ctx context.Context, userID, date string, version int64, report *nutrition.DailyReport) error
	Invalidate(ctx context.Context, userID, date string) error
}

// Options configures a RecordService. Images and Cache are optional.
type Options struct {
	Analyzer     Analyzer
	Store        RecordStore
	Images       ImageStore
	Cache        ReportCache
	Location     *time.Location
	Balance      nutrition.BalancePolicy
	MaxImageSize int64
	Now          func() time.Time
	Logger       *slog.Logger
}

type RecordService struct {
	analyzer     Analyzer
	store        RecordStore
	images       ImageStore
	cache        ReportCache
	loc          *time.Location
	balance      nutrition.BalancePolicy
	maxImageSize int64
	now          func() time.Time
	logger       *slog.Logger
}

func NewRecordService(opts Options) *RecordService {
	s := &RecordService{
		analyzer:     opts.Analyzer,
		store:        opts.Store,
		images:       opts.Images,
		cache:        opts.Cache,
		loc:          opts.Location,
		balance:      opts.Balance,
		maxImageSize: opts.MaxImageSize,
		now:          opts.Now,
		logger:       opts.Logger,
	}
	if s.cache == nil {
		s.cache = nopCache{}
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.balance == (nutrition.BalancePolicy{}) {
		s.balance = nutrition.DefaultBalancePolicy()
	}
	if s.maxImageSize <= 0 {
		s.maxImageSize = DefaultMaxImageSize
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = logger.Discard()
	}
	return s
}

// Upload is an image received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Analysis is a normalized analysis plus the context it was produced in.
type Analysis struct {
	models.AnalysisData
	MealType   models.MealType `json:"mealType"`
	AnalyzedAt time.Time       `json:"analyzedAt"`
	UserID     string          `json:"userId"`
	ImageURL   string          `json:"imageUrl,omitempty"`
}

type SaveInput struct {
	MealType string            `json:"mealType"`
	Items    []models.FoodItem `json:"items"`
	ImageURL string            `json:"imageUrl,omitempty"`
	Degraded bool              `json:"degraded,omitempty"`
}

type DayMeals struct {
	Date  string                                      `json:"date"`
	Meals nutrition.MealTable[[]models.FoodLogRecord] `json:"meals"`
	Count int                                         `json:"count"`
}

// AnalyzeUpload stores the image, sends it for analysis and normalizes the
// answer. The meal type is derived from the current time.
func (s *RecordService) AnalyzeUpload(ctx context.Context, userID string, up Upload) (*Analysis, error) {
	const op = "service.AnalyzeUpload"

	contentType, err := s.validateUpload(op, &up)
	if err != nil {
		return nil, err
	}

	var imageURL string
	if s.images != nil {
		imageURL, err = s.images.Put(ctx, userID, up.Filename, contentType, up.Data)
		if err != nil {
			s.logger.Warn("image upload failed, continuing without URL",
				"user_id", userID, "filename", up.Filename, "error", err)
			imageURL = ""
		}
	}

	payload, err := s.analyzer.Analyze(ctx, analysis.Image{
		Filename:    up.Filename,
		ContentType: contentType,
		Data:        up.Data,
	})
	if err != nil {
		s.logger.Error("image analysis failed", "user_id", userID, "filename", up.Filename, "error", err)
		return nil, wrapError(op, ErrAnalysisFailed, err)
	}

	result := s.NormalizePayload(payload)
	now := s.now()

	return &Analysis{
		AnalysisData: result.Data,
		MealType:     nutrition.ClassifyIn(now, s.loc),
		AnalyzedAt:   now.UTC(),
		UserID:       userID,
		ImageURL:     imageURL,
	}, nil
}

func (s *RecordService) validateUpload(op string, up *Upload) (string, error) {
	if len(up.Data) == 0 {
		return "", opError(op, ErrInvalidFile, "image file is required")
	}
	if int64(len(up.Data)) > s.maxImageSize {
		return "", opError(op, ErrInvalidFile, "file size exceeds %d MB limit", s.maxImageSize>>20)
	}

	contentType := strings.TrimSpace(up.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(up.Data)
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return "", opError(op, ErrInvalidFile, "only image files are allowed, got %q", contentType)
	}
	return contentType, nil
}

// NormalizePayload maps any upstream payload to the canonical result.
func (s *RecordService) NormalizePayload(payload any) models.AnalysisResult {
	shape := nutrition.DetectShape(payload)
	result := nutrition.Normalize(payload)
	level := slog.LevelDebug
	if result.Data.Degraded {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "normalized analysis payload",
		"shape", shape.String(),
		"items", len(result.Data.Items),
		"degraded", result.Data.Degraded,
	)
	return result
}

// SaveRecord persists one meal for userID. Items are re-normalized so the
// stored summary always matches them.
func (s *RecordService) SaveRecord(ctx context.Context, userID string, in SaveInput) (*models.FoodLogRecord, error) {
	const op = "service.SaveRecord"

	if userID == "" {
		return nil, opError(op, ErrUnauthorized, "")
	}
	if len(in.Items) == 0 {
		return nil, opError(op, ErrInvalidInput, "at least one food item is required")
	}

	items, err := canonicalItems(in.Items, in.Degraded)
	if err != nil {
		return nil, wrapError(op, ErrInvalidInput, err)
	}

	now := s.now()
	mealType := nutrition.ClassifyIn(now, s.loc)
	if strings.TrimSpace(in.MealType) != "" {
		mealType, err = models.ParseMealType(in.MealType)
		if err != nil {
			return nil, wrapError(op, ErrInvalidMealType, err)
		}
	}

	rec := &models.FoodLogRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		MealType:  mealType,
		Items:     items.Items,
		Summary:   items.Summary,
		ImageURL:  strings.TrimSpace(in.ImageURL),
		Degraded:  items.Degraded,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}

	if err := s.store.SaveRecord(ctx, rec); err != nil {
		s.logger.Error("failed to save record", "user_id", userID, "error", err)
		return nil, wrapError(op, ErrStorage, err)
	}

	date := now.In(s.loc).Format(dateLayout)
	if err := s.cache.Invalidate(ctx, userID, date); err != nil {
		s.logger.Warn("failed to invalidate cached report", "user_id", userID, "date", date, "error", err)
	}

	s.logger.Info("meal record saved",
		"record_id", rec.ID,
		"user_id", userID,
		"meal_type", rec.MealType.String(),
		"items", len(rec.Items),
		"calories", rec.Summary.TotalCalories,
	)
	return rec, nil
}

// canonicalItems runs caller-supplied items through the canonical
// normalization path.
func canonicalItems(items []models.FoodItem, degraded bool) (models.AnalysisData, error) {
	raw, err := json.Marshal(models.AnalysisResult{
		Success: true,
		Data:    models.AnalysisData{Items: items, Degraded: degraded},
	})
	if err != nil {
		return models.AnalysisData{}, err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.AnalysisData{}, err
	}
	return nutrition.Normalize(payload).Data, nil
}

// LogMeal analyzes an upload and saves the result in one step. An empty
// mealType keeps the classification made at analysis time.
func (s *RecordService) LogMeal(ctx context.Context, userID string, up Upload, mealType string) (*models.FoodLogRecord, error) {
	if userID == "" {
		return nil, opError("service.LogMeal", ErrUnauthorized, "")
	}
	a, err := s.AnalyzeUpload(ctx, userID, up)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(mealType) == "" {
		mealType = a.MealType.String()
	}
	return s.SaveRecord(ctx, userID, SaveInput{
		MealType: mealType,
		Items:    a.Items,
		ImageURL: a.ImageURL,
		Degraded: a.Degraded,
	})
}

// MealsByDate returns the user's records for one local calendar day grouped
// by meal type, newest first.
func (s *RecordService) MealsByDate(ctx context.Context, userID, date string) (*DayMeals, error) {
	const op = "service.MealsByDate"

	records, err := s.loadDay(ctx, op, userID, date)
	if err != nil {
		return nil, err
	}
	report := nutrition.Aggregate(date, records, s.balance)
	return &DayMeals{Date: date, Meals: report.ByMealType, Count: report.RecordCount}, nil
}

// DailyReport returns the aggregated view of one day, served from the cache
// when possible.
func (s *RecordService) DailyReport(ctx context.Context, userID, date string) (*nutrition.DailyReport, error) {
	const op = "service.DailyReport"

	if _, err := s.parseDate(op, date); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, opError(op, ErrUnauthorized, "")
	}

	cached, version, ok, err := s.cache.Get(ctx, userID, date)
	if err != nil {
		s.logger.Warn("report cache read failed", "user_id", userID, "date", date, "error", err)
	}
	if ok {
		return cached, nil
	}

	records, err := s.loadDay(ctx, op, userID, date)
	if err != nil {
		return nil, err
	}
	report := nutrition.Aggregate(date, records, s.balance)

	if err := s.cache.Set(ctx, userID, date, version, &report); err != nil {
		s.logger.Warn("report cache write failed", "user_id", userID, "date", date, "error", err)
	}
	return &report, nil
}

func (s *RecordService) loadDay(ctx context.Context, op, userID, date string) ([]models.FoodLogRecord, error) {
	start, err := s.parseDate(op, date)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, opError(op, ErrUnauthorized, "")
	}

	records, err := s.store.GetRecords(ctx, userID, start, start.AddDate(0, 0, 1), 0)
	if err != nil {
		s.logger.Error("failed to load records", "user_id", userID, "date", date, "error", err)
		return nil, wrapError(op, ErrStorage, err)
	}
	return records, nil
}

// Today is the current date in the meal timezone.
func (s *RecordService) Today() string {
	return s.now().In(s.loc).Format(dateLayout)
}

// parseDate accepts YYYY-MM-DD only and returns local midnight.
func (s *RecordService) parseDate(op, date string) (time.Time, error) {
	if !datePattern.MatchString(date) {
		return time.Time{}, opError(op, ErrInvalidDate, "date must be in YYYY-MM-DD format, got %q", date)
	}
	t, err := time.ParseInLocation(dateLayout, date, s.loc)
	if err != nil {
		return time.Time{}, opError(op, ErrInvalidDate, "%q is not a calendar date", date)
	}
	return t, nil
}

type nopCache struct{}

func (nopCache) Get(context.Context, string, string) (*nutrition.DailyReport, int64, bool, error) {
	return nil, 0, false, nil
}

func (nopCache) Set(context.Context, string, string, int64, *nutrition.DailyReport) error {
	return nil
}

func (nopCache) Invalidate(context.Context, string, string) error { return nil }
