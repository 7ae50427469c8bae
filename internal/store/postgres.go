package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pmsgw/internal/model"
)

// Postgres is the production store.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// MigrateDir applies every .sql file in dir in lexical order.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(data)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

func (p *Postgres) SaveConfiguration(ctx context.Context, in SaveConfigurationInput) (model.PMSConfiguration, error) {
	now := time.Now().UTC()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO pms_configurations (tenant_id, vendor, property_id, api_version, endpoint, sealed_credential, status, last_error, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'',$8)
		ON CONFLICT (tenant_id) DO UPDATE SET
			vendor = EXCLUDED.vendor,
			property_id = EXCLUDED.property_id,
			api_version = EXCLUDED.api_version,
			endpoint = EXCLUDED.endpoint,
			sealed_credential = EXCLUDED.sealed_credential,
			status = EXCLUDED.status,
			last_error = '',
			updated_at = EXCLUDED.updated_at`,
		in.TenantID, string(in.Vendor), in.PropertyID, in.APIVersion, in.Endpoint,
		in.SealedCredential, string(model.StatusConnected), now)
	if err != nil {
		return model.PMSConfiguration{}, err
	}
	return p.GetConfiguration(ctx, in.TenantID)
}

const configColumns = `tenant_id, vendor, property_id, api_version, endpoint, status, last_sync_at, last_error, updated_at`

func (p *Postgres) GetConfiguration(ctx context.Context, tenantID string) (model.PMSConfiguration, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+configColumns+` FROM pms_configurations WHERE tenant_id=$1`, tenantID)
	return scanConfig(row)
}

func (p *Postgres) ConnectedConfiguration(ctx context.Context, vendor model.Vendor) (model.PMSConfiguration, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+configColumns+` FROM pms_configurations WHERE vendor=$1 AND status=$2 ORDER BY updated_at DESC LIMIT 1`,
		string(vendor), string(model.StatusConnected))
	return scanConfig(row)
}

func (p *Postgres) ListConnected(ctx context.Context) ([]model.PMSConfiguration, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+configColumns+` FROM pms_configurations WHERE status=$1 ORDER BY tenant_id`,
		string(model.StatusConnected))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PMSConfiguration{}
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (p *Postgres) CredentialFor(ctx context.Context, tenantID string) (string, error) {
	var cred string
	err := p.db.QueryRowContext(ctx,
		`SELECT sealed_credential FROM pms_configurations WHERE tenant_id=$1`, tenantID).Scan(&cred)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if cred == "" {
		return "", ErrNotFound
	}
	return cred, nil
}

func (p *Postgres) Disconnect(ctx context.Context, tenantID string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE pms_configurations
		SET sealed_credential='', status=$2, last_error='', updated_at=$3
		WHERE tenant_id=$1`,
		tenantID, string(model.StatusDisconnected), time.Now().UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetSyncStatus(ctx context.Context, tenantID string, status model.ConnectionStatus, syncedAt time.Time, lastError string) error {
	var at any
	if !syncedAt.IsZero() {
		at = syncedAt.UTC()
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE pms_configurations
		SET status=$2, last_sync_at=COALESCE($3, last_sync_at), last_error=$4, updated_at=$5
		WHERE tenant_id=$1`,
		tenantID, string(status), at, lastError, time.Now().UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AddDeadLetter(ctx context.Context, dl DeadLetter) (string, error) {
	if dl.ID == "" {
		dl.ID = uuid.New().String()
	}
	if dl.ReceivedAt.IsZero() {
		dl.ReceivedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO pms_dead_letters (id, vendor, event_type, payload, reason, received_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		dl.ID, string(dl.Vendor), dl.EventType, dl.Payload, dl.Reason, dl.ReceivedAt)
	if err != nil {
		return "", err
	}
	return dl.ID, nil
}

func (p *Postgres) ListDeadLetters(ctx context.Context, vendor string, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, vendor, event_type, payload, reason, received_at
		FROM pms_dead_letters
		WHERE ($1 = '' OR vendor = $1)
		ORDER BY received_at DESC LIMIT $2`, vendor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []DeadLetter{}
	for rows.Next() {
		var dl DeadLetter
		var v string
		if err := rows.Scan(&dl.ID, &v, &dl.EventType, &dl.Payload, &dl.Reason, &dl.ReceivedAt); err != nil {
			return nil, err
		}
		dl.Vendor = model.Vendor(v)
		out = append(out, dl)
	}
	return out, rows.Err()
}

func (p *Postgres) TakeDeadLetter(ctx context.Context, id string) (DeadLetter, error) {
	row := p.db.QueryRowContext(ctx, `
		DELETE FROM pms_dead_letters WHERE id=$1
		RETURNING id, vendor, event_type, payload, reason, received_at`, id)
	var dl DeadLetter
	var v string
	err := row.Scan(&dl.ID, &v, &dl.EventType, &dl.Payload, &dl.Reason, &dl.ReceivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DeadLetter{}, ErrNotFound
	}
	if err != nil {
		return DeadLetter{}, err
	}
	dl.Vendor = model.Vendor(v)
	return dl, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (model.PMSConfiguration, error) {
	var cfg model.PMSConfiguration
	var vendor, status string
	var lastSync sql.NullTime
	err := row.Scan(&cfg.TenantID, &vendor, &cfg.PropertyID, &cfg.APIVersion,
		&cfg.Endpoint, &status, &lastSync, &cfg.LastError, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PMSConfiguration{}, ErrNotFound
	}
	if err != nil {
		return model.PMSConfiguration{}, err
	}
	cfg.Vendor = model.Vendor(vendor)
	cfg.Status = model.ConnectionStatus(status)
	if lastSync.Valid {
		at := lastSync.Time
		cfg.LastSyncAt = &at
	}
	return cfg, nil
}
