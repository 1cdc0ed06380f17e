// Package cache is the local SQLite mirror of server metadata and data
// values. It lets listing and entry keep working without connectivity and
// tracks which locally saved values still need to reach the server.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/xavim/fieldentry/internal/config"
	"github.com/xavim/fieldentry/internal/models"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Cache wraps the local database handle.
type Cache struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the cache database and runs pending
// migrations.
func Open(cfg config.CacheConfig, logger *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	// modernc sqlite serializes writes itself; one connection avoids
	// SQLITE_BUSY on concurrent use.
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate cache: %w", err)
	}

	logger.Info("cache opened", slog.String("path", cfg.Path))
	return &Cache{db: db, logger: logger}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// UpsertDatasets replaces cached dataset metadata after a successful pull.
func (c *Cache) UpsertDatasets(ctx context.Context, datasets []models.Dataset) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, ds := range datasets {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO datasets (uid, name, description, period_type, fetched_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (uid) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				period_type = excluded.period_type,
				fetched_at = excluded.fetched_at
		`, ds.UID, ds.Name, ds.Description, ds.PeriodType, now)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Datasets returns the cached dataset list.
func (c *Cache) Datasets(ctx context.Context) ([]models.Dataset, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT uid, name, COALESCE(description, ''), period_type
		FROM datasets ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Dataset
	for rows.Next() {
		var ds models.Dataset
		if err := rows.Scan(&ds.UID, &ds.Name, &ds.Description, &ds.PeriodType); err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

// UpsertOrgUnits replaces cached organisation units.
func (c *Cache) UpsertOrgUnits(ctx context.Context, units []models.OrganisationUnit) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, ou := range units {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO org_units (uid, name, level)
			VALUES (?, ?, ?)
			ON CONFLICT (uid) DO UPDATE SET name = excluded.name, level = excluded.level
		`, ou.UID, ou.Name, ou.Level)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// OrgUnits returns the cached organisation units.
func (c *Cache) OrgUnits(ctx context.Context) ([]models.OrganisationUnit, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT uid, name, level FROM org_units ORDER BY level, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.OrganisationUnit
	for rows.Next() {
		var ou models.OrganisationUnit
		if err := rows.Scan(&ou.UID, &ou.Name, &ou.Level); err != nil {
			return nil, err
		}
		out = append(out, ou)
	}
	return out, rows.Err()
}

// UpsertInstances refreshes cached dataset instances from the server.
func (c *Cache) UpsertInstances(ctx context.Context, instances []models.DatasetInstance) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, in := range instances {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO dataset_instances
				(dataset_uid, period_id, org_unit_uid, attribute_combo,
				 state, sync_state, last_updated, completed_by, completed_date, value_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (dataset_uid, period_id, org_unit_uid, attribute_combo) DO UPDATE SET
				state = excluded.state,
				sync_state = excluded.sync_state,
				last_updated = excluded.last_updated,
				completed_by = excluded.completed_by,
				completed_date = excluded.completed_date,
				value_count = excluded.value_count
		`, in.Key.DatasetUID, in.Key.PeriodID, in.Key.OrgUnitUID, in.Key.AttributeCombo,
			string(in.State), string(in.SyncState), in.LastUpdated,
			nullString(in.CompletedBy), in.CompletedDate, in.ValueCount)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Instances returns cached dataset instances matching the filter.
func (c *Cache) Instances(ctx context.Context, filter models.InstanceFilter) ([]models.DatasetInstance, error) {
	query := `
		SELECT dataset_uid, period_id, org_unit_uid, attribute_combo,
		       state, sync_state, last_updated, COALESCE(completed_by, ''), completed_date, value_count
		FROM dataset_instances WHERE 1=1`
	var args []any
	if filter.DatasetUID != "" {
		query += " AND dataset_uid = ?"
		args = append(args, filter.DatasetUID)
	}
	if filter.OrgUnitUID != "" {
		query += " AND org_unit_uid = ?"
		args = append(args, filter.OrgUnitUID)
	}
	if filter.PeriodID != "" {
		query += " AND period_id = ?"
		args = append(args, filter.PeriodID)
	}
	if filter.State != "" {
		query += " AND state = ?"
		args = append(args, string(filter.State))
	}
	query += " ORDER BY last_updated DESC"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DatasetInstance
	for rows.Next() {
		var in models.DatasetInstance
		var state, syncState string
		var completedDate sql.NullTime
		if err := rows.Scan(&in.Key.DatasetUID, &in.Key.PeriodID, &in.Key.OrgUnitUID, &in.Key.AttributeCombo,
			&state, &syncState, &in.LastUpdated, &in.CompletedBy, &completedDate, &in.ValueCount); err != nil {
			return nil, err
		}
		in.State = models.InstanceState(state)
		in.SyncState = models.SyncState(syncState)
		if completedDate.Valid {
			t := completedDate.Time
			in.CompletedDate = &t
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// SetInstanceState updates the completion state of one cached instance.
func (c *Cache) SetInstanceState(ctx context.Context, key models.InstanceKey, state models.InstanceState, completedBy string, completedDate *time.Time) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE dataset_instances
		SET state = ?, completed_by = ?, completed_date = ?, last_updated = ?
		WHERE dataset_uid = ? AND period_id = ? AND org_unit_uid = ? AND attribute_combo = ?
	`, string(state), nullString(completedBy), completedDate, time.Now().UTC(),
		key.DatasetUID, key.PeriodID, key.OrgUnitUID, key.AttributeCombo)
	return err
}

// PutValues stores server-fetched values as clean.
func (c *Cache) PutValues(ctx context.Context, key models.InstanceKey, values []models.DataValue) error {
	return c.writeValues(ctx, key, values, false)
}

// SaveValue stores a locally entered value marked dirty until pushed.
func (c *Cache) SaveValue(ctx context.Context, key models.InstanceKey, value models.DataValue) error {
	return c.writeValues(ctx, key, []models.DataValue{value}, true)
}

func (c *Cache) writeValues(ctx context.Context, key models.InstanceKey, values []models.DataValue, dirty bool) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	dirtyFlag := 0
	if dirty {
		dirtyFlag = 1
	}
	for _, v := range values {
		lastUpdated := v.LastUpdated
		if lastUpdated.IsZero() {
			lastUpdated = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO data_values
				(dataset_uid, period_id, org_unit_uid, attribute_combo,
				 data_element_uid, category_combo, value, stored_by, last_updated, dirty)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (dataset_uid, period_id, org_unit_uid, attribute_combo, data_element_uid, category_combo)
			DO UPDATE SET
				value = excluded.value,
				stored_by = excluded.stored_by,
				last_updated = excluded.last_updated,
				dirty = excluded.dirty
		`, key.DatasetUID, key.PeriodID, key.OrgUnitUID, key.AttributeCombo,
			v.DataElementUID, v.CategoryCombo, v.Value, nullString(v.StoredBy), lastUpdated, dirtyFlag)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Values returns every cached value of one dataset instance.
func (c *Cache) Values(ctx context.Context, key models.InstanceKey) ([]models.DataValue, error) {
	return c.queryValues(ctx, key, false)
}

// DirtyValues returns values saved locally but not yet pushed.
func (c *Cache) DirtyValues(ctx context.Context, key models.InstanceKey) ([]models.DataValue, error) {
	return c.queryValues(ctx, key, true)
}

func (c *Cache) queryValues(ctx context.Context, key models.InstanceKey, dirtyOnly bool) ([]models.DataValue, error) {
	query := `
		SELECT data_element_uid, category_combo, value, COALESCE(stored_by, ''), last_updated
		FROM data_values
		WHERE dataset_uid = ? AND period_id = ? AND org_unit_uid = ? AND attribute_combo = ?`
	if dirtyOnly {
		query += " AND dirty = 1"
	}

	rows, err := c.db.QueryContext(ctx, query,
		key.DatasetUID, key.PeriodID, key.OrgUnitUID, key.AttributeCombo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DataValue
	for rows.Next() {
		var v models.DataValue
		if err := rows.Scan(&v.DataElementUID, &v.CategoryCombo, &v.Value, &v.StoredBy, &v.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// MarkSynced clears the dirty flag on every value of one instance after a
// successful push.
func (c *Cache) MarkSynced(ctx context.Context, key models.InstanceKey) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE data_values SET dirty = 0
		WHERE dataset_uid = ? AND period_id = ? AND org_unit_uid = ? AND attribute_combo = ?
	`, key.DatasetUID, key.PeriodID, key.OrgUnitUID, key.AttributeCombo)
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
