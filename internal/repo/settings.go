package repo

import (
	"context"
	"database/sql"
	"strconv"
)

// SettingAIThreshold is the admin-tunable score bound separating an AI
// approval from a flag. Read per scoring invocation, never cached.
const SettingAIThreshold = "ai_confidence_threshold"

func (r Repo) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

func (r Repo) PutSetting(ctx context.Context, key, value, now string) error {
	return r.putSetting(ctx, r.DB, key, value, now)
}

func (r Repo) PutSettingTx(ctx context.Context, tx *sql.Tx, key, value, now string) error {
	return r.putSetting(ctx, tx, key, value, now)
}

func (r Repo) putSetting(ctx context.Context, q querier, key, value, now string) error {
	_, err := q.ExecContext(ctx, `INSERT INTO settings(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, now)
	return err
}

// AIThreshold fetches the current confidence threshold, falling back to the
// supplied default when the setting is missing or malformed.
func (r Repo) AIThreshold(ctx context.Context, fallback int) int {
	raw, err := r.GetSetting(ctx, SettingAIThreshold)
	if err != nil {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 || v > 100 {
		return fallback
	}
	return v
}
