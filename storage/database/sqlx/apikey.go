package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pixelforegllc/quantummftools-dash/core/apikey"
)

const apiKeyColumns = "id, service, api_key, description, is_active, usage_limit, last_used, created_at, updated_at"

type apiKeyRow struct {
	ID          string    `db:"id"`
	Service     string    `db:"service"`
	Secret      string    `db:"api_key"`
	Description string    `db:"description"`
	IsActive    bool      `db:"is_active"`
	UsageLimit  int       `db:"usage_limit"`
	LastUsed    null.Time `db:"last_used"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type apiKeyRepository struct {
	db *sqlx.DB
}

var _ apikey.Repository = (*apiKeyRepository)(nil) // interface compliance check

func NewAPIKeyRepository(db *sqlx.DB) *apiKeyRepository {
	return &apiKeyRepository{db: db}
}

func (repo apiKeyRepository) toRow(key apikey.APIKey) apiKeyRow {
	return apiKeyRow{
		ID:          key.ID,
		Service:     key.Service,
		Secret:      key.Secret,
		Description: key.Description,
		IsActive:    key.IsActive,
		UsageLimit:  key.UsageLimit,
		LastUsed:    nullTime(key.LastUsed),
		CreatedAt:   key.CreatedAt.UTC(),
		UpdatedAt:   key.UpdatedAt.UTC(),
	}
}

func (repo apiKeyRepository) fromRow(row apiKeyRow) apikey.APIKey {
	key := apikey.APIKey{
		ID:          row.ID,
		Service:     row.Service,
		Secret:      row.Secret,
		Description: row.Description,
		IsActive:    row.IsActive,
		UsageLimit:  row.UsageLimit,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if row.LastUsed.Valid {
		t := row.LastUsed.Time.UTC()
		key.LastUsed = &t
	}
	return key
}

func (repo apiKeyRepository) selectKeys(ctx context.Context, q string, args ...interface{}) ([]apikey.APIKey, error) {
	var rows []apiKeyRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	keys := make([]apikey.APIKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, repo.fromRow(row))
	}
	return keys, nil
}

func (repo apiKeyRepository) QueryAPIKeys(ctx context.Context) ([]apikey.APIKey, error) {
	keys, err := repo.selectKeys(ctx, "SELECT "+apiKeyColumns+" FROM api_keys ORDER BY created_at DESC, id")
	return keys, errors.Wrap(err, "querying API keys")
}

func (repo apiKeyRepository) get(ctx context.Context, where string, args ...interface{}) (apikey.APIKey, error) {
	var row apiKeyRow
	q := repo.db.Rebind("SELECT " + apiKeyColumns + " FROM api_keys WHERE " + where + " LIMIT 1")
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return apikey.APIKey{}, trapNoRowsErr(err, apikey.ErrNotFound, "finding API key")
	}
	return repo.fromRow(row), nil
}

func (repo apiKeyRepository) GetAPIKey(ctx context.Context, id string) (apikey.APIKey, error) {
	if _, err := uuid.Parse(id); err != nil {
		return apikey.APIKey{}, apikey.ErrNotFound
	}
	return repo.get(ctx, "id = ?", id)
}

func (repo apiKeyRepository) GetActiveAPIKey(ctx context.Context, service string) (apikey.APIKey, error) {
	return repo.get(ctx, "service = ? AND is_active = ? ORDER BY created_at DESC, id", service, true)
}

func (repo apiKeyRepository) CreateAPIKey(ctx context.Context, key apikey.APIKey) (apikey.APIKey, error) {
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	q := `INSERT INTO api_keys (` + apiKeyColumns + `) VALUES
		(:id, :service, :api_key, :description, :is_active, :usage_limit, :last_used, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, repo.toRow(key)); err != nil {
		return apikey.APIKey{}, errors.Wrap(err, "inserting API key")
	}
	return repo.GetAPIKey(ctx, key.ID)
}

func (repo apiKeyRepository) UpdateAPIKey(ctx context.Context, key apikey.APIKey) (apikey.APIKey, error) {
	q := `UPDATE api_keys SET service = :service, api_key = :api_key, description = :description,
		is_active = :is_active, usage_limit = :usage_limit, last_used = :last_used, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, repo.toRow(key))
	if err != nil {
		return apikey.APIKey{}, errors.Wrap(err, "updating API key")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apikey.APIKey{}, apikey.ErrNotFound
	}
	return repo.GetAPIKey(ctx, key.ID)
}

func (repo apiKeyRepository) DeleteAPIKey(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apikey.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind("DELETE FROM api_keys WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting API key")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apikey.ErrNotFound
	}
	return nil
}

func (repo apiKeyRepository) RecordUsage(ctx context.Context, keyID string, at time.Time) error {
	q := repo.db.Rebind("INSERT INTO api_key_usage (id, api_key_id, used_at) VALUES (?, ?, ?)")
	if _, err := repo.db.ExecContext(ctx, q, uuid.NewString(), keyID, at.UTC()); err != nil {
		return errors.Wrap(err, "inserting API key usage")
	}
	return nil
}

func (repo apiKeyRepository) QueryUsage(ctx context.Context, keyID string, since time.Time) ([]time.Time, error) {
	var uses []time.Time
	q := repo.db.Rebind("SELECT used_at FROM api_key_usage WHERE api_key_id = ? AND used_at >= ? ORDER BY used_at")
	if err := repo.db.SelectContext(ctx, &uses, q, keyID, since.UTC()); err != nil {
		return nil, errors.Wrap(err, "querying API key usage")
	}
	for i := range uses {
		uses[i] = uses[i].UTC()
	}
	return uses, nil
}

func (repo apiKeyRepository) CountUsage(ctx context.Context, keyID string) (int, error) {
	var n int
	q := repo.db.Rebind("SELECT COUNT(*) FROM api_key_usage WHERE api_key_id = ?")
	if err := repo.db.GetContext(ctx, &n, q, keyID); err != nil {
		return 0, errors.Wrap(err, "counting API key usage")
	}
	return n, nil
}
