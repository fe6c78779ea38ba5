// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"mcp-meal-snap/internal/models"
)

// timestamps are stored as fixed-width UTC text so range filters can compare
// them lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	storage := &SQLiteStorage{db: db}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS food_logs (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        meal_type TEXT NOT NULL CHECK (meal_type IN ('breakfast', 'lunch', 'dinner', 'snack')),
        total_calories REAL NOT NULL,
        total_carbohydrates REAL NOT NULL,
        total_protein REAL NOT NULL,
        total_fat REAL NOT NULL,
        image_url TEXT NOT NULL DEFAULT '',
        degraded INTEGER NOT NULL DEFAULT 0,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS food_items (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        log_id TEXT NOT NULL,
        position INTEGER NOT NULL,
        food_name TEXT NOT NULL,
        confidence REAL NOT NULL,
        quantity TEXT NOT NULL,
        calories REAL NOT NULL,
        carbohydrates REAL NOT NULL,
        carbohydrates_unit TEXT NOT NULL,
        protein REAL NOT NULL,
        protein_unit TEXT NOT NULL,
        fat REAL NOT NULL,
        fat_unit TEXT NOT NULL,
        sugars REAL,
        sugars_unit TEXT,
        sodium REAL,
        sodium_unit TEXT,
        FOREIGN KEY (log_id) REFERENCES food_logs(id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_food_logs_user_created ON food_logs(user_id, created_at);
    CREATE INDEX IF NOT EXISTS idx_food_items_log_id ON food_items(log_id);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) SaveRecord(ctx context.Context, rec *models.FoodLogRecord) error {
	if !rec.MealType.Valid() {
		return fmt.Errorf("invalid meal type %d", int(rec.MealType))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	logQuery := `
        INSERT INTO food_logs (id, user_id, meal_type, total_calories, total_carbohydrates,
            total_protein, total_fat, image_url, degraded, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err = tx.ExecContext(ctx, logQuery,
		rec.ID, rec.UserID, rec.MealType.String(), rec.Summary.TotalCalories,
		rec.Summary.TotalCarbohydrates.Value, rec.Summary.TotalProtein.Value, rec.Summary.TotalFat.Value,
		rec.ImageURL, rec.Degraded, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert food log: %w", err)
	}

	itemQuery := `
        INSERT INTO food_items (log_id, position, food_name, confidence, quantity, calories,
            carbohydrates, carbohydrates_unit, protein, protein_unit, fat, fat_unit,
            sugars, sugars_unit, sodium, sodium_unit)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	for i, item := range rec.Items {
		n := item.Nutrients
		sugars, sugarsUnit := optionalQuantity(n.Sugars)
		sodium, sodiumUnit := optionalQuantity(n.Sodium)
		_, err = tx.ExecContext(ctx, itemQuery,
			rec.ID, i, item.FoodName, item.Confidence, item.Quantity, item.Calories,
			n.Carbohydrates.Value, n.Carbohydrates.Unit, n.Protein.Value, n.Protein.Unit,
			n.Fat.Value, n.Fat.Unit, sugars, sugarsUnit, sodium, sodiumUnit)
		if err != nil {
			return fmt.Errorf("failed to insert food item: %w", err)
		}
	}

	return tx.Commit()
}

// GetRecords returns userID's records created in [from, to), newest first.
// A non-positive limit means no limit.
func (s *SQLiteStorage) GetRecords(ctx context.Context, userID string, from, to time.Time, limit int) ([]models.FoodLogRecord, error) {
	query := `
        SELECT id, user_id, meal_type, total_calories, total_carbohydrates, total_protein,
            total_fat, image_url, degraded, created_at, updated_at
        FROM food_logs
        WHERE user_id = ? AND created_at >= ? AND created_at < ?
        ORDER BY created_at DESC
    `
	args := []interface{}{userID, formatTime(from), formatTime(to)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query food logs: %w", err)
	}

	var records []models.FoodLogRecord
	for rows.Next() {
		rec := models.FoodLogRecord{Summary: models.Summarize(nil)}
		var mealType, createdAt, updatedAt string

		err := rows.Scan(
			&rec.ID, &rec.UserID, &mealType, &rec.Summary.TotalCalories,
			&rec.Summary.TotalCarbohydrates.Value, &rec.Summary.TotalProtein.Value,
			&rec.Summary.TotalFat.Value, &rec.ImageURL, &rec.Degraded, &createdAt, &updatedAt)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan food log: %w", err)
		}

		if rec.MealType, err = models.ParseMealType(mealType); err != nil {
			rows.Close()
			return nil, fmt.Errorf("food log %s: %w", rec.ID, err)
		}
		if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if rec.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate food logs: %w", err)
	}
	rows.Close()

	// items are loaded after the cursor is closed; the pool holds one connection
	for i := range records {
		if err := s.loadItems(ctx, &records[i]); err != nil {
			return nil, fmt.Errorf("failed to load items for food log %s: %w", records[i].ID, err)
		}
	}

	return records, nil
}

func (s *SQLiteStorage) loadItems(ctx context.Context, rec *models.FoodLogRecord) error {
	query := `
        SELECT food_name, confidence, quantity, calories, carbohydrates, carbohydrates_unit,
            protein, protein_unit, fat, fat_unit, sugars, sugars_unit, sodium, sodium_unit
        FROM food_items
        WHERE log_id = ?
        ORDER BY position
    `

	rows, err := s.db.QueryContext(ctx, query, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to query food items: %w", err)
	}
	defer rows.Close()

	items := []models.FoodItem{}
	for rows.Next() {
		var (
			item             models.FoodItem
			sugars, sodium   sql.NullFloat64
			sugarsU, sodiumU sql.NullString
		)
		n := &item.Nutrients
		err := rows.Scan(
			&item.FoodName, &item.Confidence, &item.Quantity, &item.Calories,
			&n.Carbohydrates.Value, &n.Carbohydrates.Unit, &n.Protein.Value, &n.Protein.Unit,
			&n.Fat.Value, &n.Fat.Unit, &sugars, &sugarsU, &sodium, &sodiumU)
		if err != nil {
			return fmt.Errorf("failed to scan food item: %w", err)
		}

		n.Sugars = scanQuantity(sugars, sugarsU)
		n.Sodium = scanQuantity(sodium, sodiumU)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate food items: %w", err)
	}

	rec.Items = items
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func optionalQuantity(q *models.NutrientQuantity) (sql.NullFloat64, sql.NullString) {
	if q == nil {
		return sql.NullFloat64{}, sql.NullString{}
	}
	return sql.NullFloat64{Float64: q.Value, Valid: true}, sql.NullString{String: q.Unit, Valid: true}
}

func scanQuantity(value sql.NullFloat64, unit sql.NullString) *models.NutrientQuantity {
	if !value.Valid {
		return nil
	}
	return &models.NutrientQuantity{Value: value.Float64, Unit: unit.String}
}
