package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"agent-pricing-engine/internal/config"
)

// PostgresStore persists campaigns in a single table with JSONB rule
// columns. Every write emits a NOTIFY on the configured channel so the
// listener can refresh the catalog snapshot.
type PostgresStore struct {
	pool    *pgxpool.Pool
	channel string
}

func NewPostgresStore(ctx context.Context, cfg config.Config) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Postgres.MaxIdleConns)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	return &PostgresStore{pool: pool, channel: cfg.Listener.Channel}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

const campaignColumns = `id, name, description, status, start_date, end_date,
	product_ids, discount_ids, header_rules, target_authenticated,
	identity_rules, ip_ranges, created_at, updated_at`

// ListCampaigns returns every campaign with fully populated rule sets.
func (s *PostgresStore) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY start_date DESC NULLS LAST, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: query campaigns: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, rows.Err())
	}
	return out, nil
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (Campaign, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Campaign{}, ErrNotFound
	}
	if err != nil {
		return Campaign{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return c, nil
}

func (s *PostgresStore) CreateCampaign(ctx context.Context, c Campaign) (Campaign, error) {
	if err := c.Validate(); err != nil {
		return Campaign{}, err
	}
	c.ID = uuid.NewString()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	headerRules, identityRules, err := marshalRules(c)
	if err != nil {
		return Campaign{}, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO campaigns (`+campaignColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, c.ID, c.Name, c.Description, c.Status, c.StartDate, c.EndDate,
		c.ProductIDs, c.DiscountIDs, headerRules, c.TargetAuthenticated,
		identityRules, c.IPRanges, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return Campaign{}, fmt.Errorf("insert campaign: %w", err)
	}

	s.notify(ctx, c.ID)
	return c, nil
}

func (s *PostgresStore) UpdateCampaign(ctx context.Context, c Campaign) (Campaign, error) {
	if err := c.Validate(); err != nil {
		return Campaign{}, err
	}
	c.UpdatedAt = time.Now().UTC()

	headerRules, identityRules, err := marshalRules(c)
	if err != nil {
		return Campaign{}, err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE campaigns SET
			name = $2, description = $3, status = $4, start_date = $5, end_date = $6,
			product_ids = $7, discount_ids = $8, header_rules = $9,
			target_authenticated = $10, identity_rules = $11, ip_ranges = $12,
			updated_at = $13
		WHERE id = $1
	`, c.ID, c.Name, c.Description, c.Status, c.StartDate, c.EndDate,
		c.ProductIDs, c.DiscountIDs, headerRules, c.TargetAuthenticated,
		identityRules, c.IPRanges, c.UpdatedAt)
	if err != nil {
		return Campaign{}, fmt.Errorf("update campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Campaign{}, ErrNotFound
	}

	s.notify(ctx, c.ID)
	return s.GetCampaign(ctx, c.ID)
}

func (s *PostgresStore) DeleteCampaign(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.notify(ctx, id)
	return nil
}

func (s *PostgresStore) notify(ctx context.Context, id string) {
	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, s.channel, id); err != nil {
		log.Warn().Err(err).Str("campaign_id", id).Msg("notify campaign change")
	}
}

func marshalRules(c Campaign) (headerRules, identityRules []byte, err error) {
	headerRules, err = json.Marshal(c.HeaderRules)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal header rules: %w", err)
	}
	identityRules, err = json.Marshal(c.IdentityRules)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal identity rules: %w", err)
	}
	return headerRules, identityRules, nil
}

func scanCampaign(row pgx.Row) (Campaign, error) {
	var (
		c             Campaign
		headerRules   []byte
		identityRules []byte
	)
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Status, &c.StartDate, &c.EndDate,
		&c.ProductIDs, &c.DiscountIDs, &headerRules, &c.TargetAuthenticated,
		&identityRules, &c.IPRanges, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Campaign{}, err
	}
	if len(headerRules) > 0 {
		if err := json.Unmarshal(headerRules, &c.HeaderRules); err != nil {
			return Campaign{}, fmt.Errorf("decode header rules for %s: %w", c.ID, err)
		}
	}
	if len(identityRules) > 0 {
		if err := json.Unmarshal(identityRules, &c.IdentityRules); err != nil {
			return Campaign{}, fmt.Errorf("decode identity rules for %s: %w", c.ID, err)
		}
	}
	return c, nil
}
