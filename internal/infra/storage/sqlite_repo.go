package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteThirstRepository implements ThirstRepository for SQLite.
type SQLiteThirstRepository struct {
	db *sql.DB
}

func NewSQLiteThirstRepository(db *sql.DB) *SQLiteThirstRepository {
	return &SQLiteThirstRepository{db: db}
}

func (r *SQLiteThirstRepository) Get(ctx context.Context, xuid string) (*ThirstRecord, error) {
	query := `SELECT xuid, player_name, thirst, updated_at FROM player_thirst WHERE xuid = ?`
	var rec ThirstRecord
	err := r.db.QueryRowContext(ctx, query, xuid).Scan(&rec.XUID, &rec.Name, &rec.Level, &rec.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query thirst record: %w", err)
	}
	return &rec, nil
}

func (r *SQLiteThirstRepository) Upsert(ctx context.Context, rec ThirstRecord) error {
	query := `
		INSERT INTO player_thirst (xuid, player_name, thirst, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(xuid) DO UPDATE SET
			player_name=excluded.player_name,
			thirst=excluded.thirst,
			updated_at=excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, rec.XUID, rec.Name, rec.Level, rec.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert thirst record: %w", err)
	}
	return nil
}

func (r *SQLiteThirstRepository) GetAll(ctx context.Context) ([]ThirstRecord, error) {
	query := `SELECT xuid, player_name, thirst, updated_at FROM player_thirst ORDER BY player_name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list thirst records: %w", err)
	}
	defer rows.Close()

	var recs []ThirstRecord
	for rows.Next() {
		var rec ThirstRecord
		if err := rows.Scan(&rec.XUID, &rec.Name, &rec.Level, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ---------------------------------------------------------
// SQLiteItemRepository
// ---------------------------------------------------------

// SQLiteItemRepository implements ItemRepository for SQLite.
type SQLiteItemRepository struct {
	db *sql.DB
}

func NewSQLiteItemRepository(db *sql.DB) *SQLiteItemRepository {
	return &SQLiteItemRepository{db: db}
}

func (r *SQLiteItemRepository) Get(ctx context.Context, itemID string) (*ItemRecord, error) {
	query := `SELECT item_id, item_name, thirst_delta, effects, created_at, updated_at FROM thirst_items WHERE item_id = ?`
	rec, err := scanItem(r.db.QueryRowContext(ctx, query, itemID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query item record: %w", err)
	}
	return rec, nil
}

func (r *SQLiteItemRepository) Upsert(ctx context.Context, rec ItemRecord) error {
	var effectsJSON sql.NullString
	if len(rec.Effects) > 0 {
		data, err := json.Marshal(rec.Effects)
		if err != nil {
			return fmt.Errorf("failed to marshal item effects: %w", err)
		}
		effectsJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO thirst_items (item_id, item_name, thirst_delta, effects, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			item_name=excluded.item_name,
			thirst_delta=excluded.thirst_delta,
			effects=excluded.effects,
			updated_at=excluded.updated_at
	`
	now := time.Now().UTC()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if _, err := r.db.ExecContext(ctx, query, rec.ItemID, rec.Name, rec.ThirstDelta, effectsJSON, createdAt, now); err != nil {
		return fmt.Errorf("failed to upsert item record: %w", err)
	}
	return nil
}

func (r *SQLiteItemRepository) GetAll(ctx context.Context) ([]ItemRecord, error) {
	query := `SELECT item_id, item_name, thirst_delta, effects, created_at, updated_at FROM thirst_items ORDER BY item_name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list item records: %w", err)
	}
	defer rows.Close()

	var recs []ItemRecord
	for rows.Next() {
		rec, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*ItemRecord, error) {
	var rec ItemRecord
	var effectsJSON sql.NullString
	if err := row.Scan(&rec.ItemID, &rec.Name, &rec.ThirstDelta, &effectsJSON, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if effectsJSON.Valid && effectsJSON.String != "" {
		if err := json.Unmarshal([]byte(effectsJSON.String), &rec.Effects); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item effects: %w", err)
		}
	}
	return &rec, nil
}

// ---------------------------------------------------------
// SQLiteEventRepository
// ---------------------------------------------------------

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, rec EventRecord) error {
	payloadBytes, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, timestamp, event_type, survivor_id, payload)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, rec.ID, rec.Timestamp, rec.EventType, rec.SurvivorID, string(payloadBytes)); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}
