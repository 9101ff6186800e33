package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/leasingborsen/reconcile-cli/internal/db"
	"github.com/leasingborsen/reconcile-cli/internal/model"
	"github.com/leasingborsen/reconcile-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists the apply-path queries prepared on each new
// connection; the apply engine hits these once per selected change.
var preparedStatements = map[string]string{
	"get_change": `SELECT id, session_id, change_type, existing_listing_id, extracted_data, diff,
		confidence, match_method, status, error, applied_at, applied_by, created_at
		FROM extraction_listing_changes WHERE id = $1`,
	"mark_change_applied": `UPDATE extraction_listing_changes SET status = 'applied', applied_by = $1, applied_at = $2
		WHERE id = $3 AND status = 'pending'`,
	"clear_change_refs":   `UPDATE extraction_listing_changes SET existing_listing_id = NULL WHERE existing_listing_id = $1`,
	"delete_lease_pricing": `DELETE FROM lease_pricing WHERE listing_id = $1`,
	"delete_listing":      `DELETE FROM listings WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool. The
// initial ping is retried with backoff: managed Postgres instances
// routinely drop the first connection after a cold start.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("postgres", "ping")
	if err := resilience.Do(ctx, retryCfg, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The store does not own
// the pool; Close is a no-op. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: func() {}}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS listings (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	seller_id     TEXT NOT NULL,
	make          TEXT NOT NULL,
	model         TEXT NOT NULL,
	variant       TEXT NOT NULL,
	transmission  TEXT NOT NULL DEFAULT '',
	fuel_type     TEXT NOT NULL DEFAULT '',
	body_type     TEXT NOT NULL DEFAULT '',
	horsepower    INTEGER NOT NULL DEFAULT 0,
	year          INTEGER NOT NULL DEFAULT 0,
	wltp_range_km INTEGER NOT NULL DEFAULT 0,
	co2_emission  INTEGER NOT NULL DEFAULT 0,
	monthly_price INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_listings_seller ON listings(seller_id);

CREATE TABLE IF NOT EXISTS lease_pricing (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	listing_id       TEXT NOT NULL REFERENCES listings(id),
	monthly_price    INTEGER NOT NULL,
	first_payment    INTEGER NOT NULL DEFAULT 0,
	period_months    INTEGER NOT NULL,
	mileage_per_year INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lease_pricing_listing ON lease_pricing(listing_id);

CREATE TABLE IF NOT EXISTS extraction_sessions (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	seller_id       TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	created_count   INTEGER NOT NULL DEFAULT 0,
	updated_count   INTEGER NOT NULL DEFAULT 0,
	deleted_count   INTEGER NOT NULL DEFAULT 0,
	unchanged_count INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	applied_at      TIMESTAMPTZ,
	applied_by      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_seller ON extraction_sessions(seller_id);

CREATE TABLE IF NOT EXISTS extraction_listing_changes (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_id          TEXT NOT NULL REFERENCES extraction_sessions(id),
	change_type         TEXT NOT NULL,
	existing_listing_id TEXT REFERENCES listings(id),
	extracted_data      JSONB,
	diff                JSONB,
	confidence          DOUBLE PRECISION NOT NULL DEFAULT 0,
	match_method        TEXT NOT NULL DEFAULT 'unmatched',
	status              TEXT NOT NULL DEFAULT 'pending',
	error               TEXT NOT NULL DEFAULT '',
	applied_at          TIMESTAMPTZ,
	applied_by          TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_changes_session ON extraction_listing_changes(session_id);
CREATE INDEX IF NOT EXISTS idx_changes_existing_listing ON extraction_listing_changes(existing_listing_id);

CREATE TABLE IF NOT EXISTS models (
	make  TEXT NOT NULL,
	model TEXT NOT NULL,
	PRIMARY KEY (make, model)
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}

// --- sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, sellerID string, counts model.SessionCounts) (*model.ExtractionSession, error) {
	sess := &model.ExtractionSession{
		ID:        uuid.New().String(),
		SellerID:  sellerID,
		Status:    model.SessionStatusPending,
		Counts:    counts,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO extraction_sessions (id, seller_id, status, created_count, updated_count, deleted_count, unchanged_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sess.ID, sess.SellerID, string(sess.Status),
		counts.Created, counts.Updated, counts.Deleted, counts.Unchanged, sess.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert session")
	}
	return sess, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*model.ExtractionSession, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, seller_id, status, created_count, updated_count, deleted_count, unchanged_count, created_at, applied_at, applied_by
		 FROM extraction_sessions WHERE id = $1`, sessionID)

	sess, err := scanSessionPg(row)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "postgres: session %s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get session")
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, sellerID string, limit int) ([]model.ExtractionSession, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, seller_id, status, created_count, updated_count, deleted_count, unchanged_count, created_at, applied_at, applied_by
	          FROM extraction_sessions`
	var rows pgx.Rows
	var err error
	if sellerID != "" {
		rows, err = s.pool.Query(ctx, query+` WHERE seller_id = $1 ORDER BY created_at DESC LIMIT $2`, sellerID, limit)
	} else {
		rows, err = s.pool.Query(ctx, query+` ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.ExtractionSession
	for rows.Next() {
		sess, err := scanSessionPg(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_sessions SET status = $1 WHERE id = $2`, string(status), sessionID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update session status %s", sessionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: session %s", sessionID)
	}
	return nil
}

func (s *PostgresStore) MarkSessionApplied(ctx context.Context, sessionID string, status model.SessionStatus, appliedBy string, appliedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_sessions SET status = $1, applied_by = $2, applied_at = $3 WHERE id = $4`,
		string(status), appliedBy, appliedAt, sessionID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark session applied %s", sessionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: session %s", sessionID)
	}
	return nil
}

// --- changes ---

func (s *PostgresStore) SaveChanges(ctx context.Context, sessionID string, changes []model.Change) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save changes")
	}
	defer tx.Rollback(ctx)

	for _, ch := range changes {
		extractedJSON, diffJSON, err := marshalChangePayloads(&ch)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO extraction_listing_changes
			 (id, session_id, change_type, existing_listing_id, extracted_data, diff, confidence, match_method, status, error, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			ch.ID, sessionID, string(ch.ChangeType), ch.ExistingListingID,
			extractedJSON, diffJSON, ch.Confidence, string(ch.MatchMethod),
			string(ch.Status), ch.Error, ch.CreatedAt,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert change %s", ch.ID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save changes")
}

func (s *PostgresStore) GetChange(ctx context.Context, changeID string) (*model.Change, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, session_id, change_type, existing_listing_id, extracted_data, diff,
		        confidence, match_method, status, error, applied_at, applied_by, created_at
		 FROM extraction_listing_changes WHERE id = $1`, changeID)
	ch, err := scanChangePg(row)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "postgres: change %s", changeID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get change")
	}
	return ch, nil
}

func (s *PostgresStore) ListChanges(ctx context.Context, sessionID string) ([]model.Change, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, change_type, existing_listing_id, extracted_data, diff,
		        confidence, match_method, status, error, applied_at, applied_by, created_at
		 FROM extraction_listing_changes WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list changes")
	}
	defer rows.Close()

	var changes []model.Change
	for rows.Next() {
		ch, err := scanChangePg(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan change")
		}
		changes = append(changes, *ch)
	}
	return changes, eris.Wrap(rows.Err(), "postgres: list changes iterate")
}

func (s *PostgresStore) MarkChangeApplied(ctx context.Context, changeID, appliedBy string, appliedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_listing_changes SET status = 'applied', applied_by = $1, applied_at = $2
		 WHERE id = $3 AND status = 'pending'`,
		appliedBy, appliedAt, changeID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark change applied %s", changeID)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := s.pool.QueryRow(ctx,
			`SELECT status FROM extraction_listing_changes WHERE id = $1`, changeID).Scan(&status)
		if err == pgx.ErrNoRows {
			return eris.Wrapf(ErrNotFound, "postgres: change %s", changeID)
		}
		if err != nil {
			return eris.Wrap(err, "postgres: check change status")
		}
		return eris.Wrapf(ErrAlreadyApplied, "postgres: change %s is %s", changeID, status)
	}
	return nil
}

func (s *PostgresStore) MarkChangeRejected(ctx context.Context, changeID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_listing_changes SET status = 'rejected' WHERE id = $1 AND status = 'pending'`,
		changeID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark change rejected %s", changeID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: pending change %s", changeID)
	}
	return nil
}

func (s *PostgresStore) ClearChangeReferences(ctx context.Context, listingID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_listing_changes SET existing_listing_id = NULL WHERE existing_listing_id = $1`,
		listingID)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: clear change references %s", listingID)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CountChangeReferences(ctx context.Context, listingID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM extraction_listing_changes WHERE existing_listing_id = $1`,
		listingID).Scan(&n)
	return n, eris.Wrap(err, "postgres: count change references")
}

// --- inventory ---

func (s *PostgresStore) ListingsBySeller(ctx context.Context, sellerID string) ([]model.ExistingListing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, seller_id, make, model, variant, transmission, fuel_type, body_type,
		        horsepower, year, wltp_range_km, co2_emission, monthly_price, created_at, updated_at
		 FROM listings WHERE seller_id = $1 ORDER BY id`, sellerID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: listings by seller")
	}
	defer rows.Close()

	var listings []model.ExistingListing
	index := make(map[string]int)
	for rows.Next() {
		l, err := scanListingPg(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		index[l.ID] = len(listings)
		listings = append(listings, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: listings iterate")
	}

	offerRows, err := s.pool.Query(ctx,
		`SELECT p.listing_id, p.monthly_price, p.first_payment, p.period_months, p.mileage_per_year
		 FROM lease_pricing p JOIN listings l ON l.id = p.listing_id
		 WHERE l.seller_id = $1 ORDER BY p.listing_id, p.period_months, p.mileage_per_year`, sellerID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: offers by seller")
	}
	defer offerRows.Close()

	for offerRows.Next() {
		var listingID string
		var o model.Offer
		if err := offerRows.Scan(&listingID, &o.MonthlyPrice, &o.FirstPayment, &o.PeriodMonths, &o.MileagePerYear); err != nil {
			return nil, eris.Wrap(err, "postgres: scan offer")
		}
		if i, ok := index[listingID]; ok {
			listings[i].Offers = append(listings[i].Offers, o)
		}
	}
	return listings, eris.Wrap(offerRows.Err(), "postgres: offers iterate")
}

func (s *PostgresStore) GetListing(ctx context.Context, listingID string) (*model.ExistingListing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, seller_id, make, model, variant, transmission, fuel_type, body_type,
		        horsepower, year, wltp_range_km, co2_emission, monthly_price, created_at, updated_at
		 FROM listings WHERE id = $1`, listingID)
	l, err := scanListingPg(row)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "postgres: listing %s", listingID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get listing")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT monthly_price, first_payment, period_months, mileage_per_year
		 FROM lease_pricing WHERE listing_id = $1 ORDER BY period_months, mileage_per_year`, listingID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get listing offers")
	}
	defer rows.Close()
	for rows.Next() {
		var o model.Offer
		if err := rows.Scan(&o.MonthlyPrice, &o.FirstPayment, &o.PeriodMonths, &o.MileagePerYear); err != nil {
			return nil, eris.Wrap(err, "postgres: scan offer")
		}
		l.Offers = append(l.Offers, o)
	}
	return l, eris.Wrap(rows.Err(), "postgres: offers iterate")
}

func (s *PostgresStore) InsertListing(ctx context.Context, l *model.ExistingListing) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO listings (id, seller_id, make, model, variant, transmission, fuel_type, body_type,
		                       horsepower, year, wltp_range_km, co2_emission, monthly_price, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		l.ID, l.SellerID, l.Make, l.Model, l.Variant, l.Transmission, l.FuelType, l.BodyType,
		l.Horsepower, l.Year, l.WLTPRangeKM, l.CO2Emission, l.MonthlyPrice, l.CreatedAt, l.UpdatedAt)
	return eris.Wrapf(err, "postgres: insert listing %s", l.ID)
}

// InsertOffers bulk-inserts via COPY; offer batches from a full import
// run to thousands of rows.
func (s *PostgresStore) InsertOffers(ctx context.Context, listingID string, offers []model.Offer) error {
	if len(offers) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(offers))
	for _, o := range offers {
		rows = append(rows, []any{
			uuid.New().String(), listingID, o.MonthlyPrice, o.FirstPayment, o.PeriodMonths, o.MileagePerYear,
		})
	}
	_, err := db.CopyFrom(ctx, s.pool, "lease_pricing",
		[]string{"id", "listing_id", "monthly_price", "first_payment", "period_months", "mileage_per_year"},
		rows)
	return eris.Wrapf(err, "postgres: insert offers for listing %s", listingID)
}

func (s *PostgresStore) UpdateListing(ctx context.Context, l *model.ExistingListing) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin update listing")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE listings SET make = $1, model = $2, variant = $3, transmission = $4, fuel_type = $5, body_type = $6,
		        horsepower = $7, year = $8, wltp_range_km = $9, co2_emission = $10, monthly_price = $11, updated_at = now()
		 WHERE id = $12`,
		l.Make, l.Model, l.Variant, l.Transmission, l.FuelType, l.BodyType,
		l.Horsepower, l.Year, l.WLTPRangeKM, l.CO2Emission, l.MonthlyPrice, l.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update listing %s", l.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: listing %s", l.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM lease_pricing WHERE listing_id = $1`, l.ID); err != nil {
		return eris.Wrapf(err, "postgres: delete offers for listing %s", l.ID)
	}
	for _, o := range l.Offers {
		if _, err := tx.Exec(ctx,
			`INSERT INTO lease_pricing (id, listing_id, monthly_price, first_payment, period_months, mileage_per_year)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New().String(), l.ID, o.MonthlyPrice, o.FirstPayment, o.PeriodMonths, o.MileagePerYear,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert offer for listing %s", l.ID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit update listing")
}

func (s *PostgresStore) DeleteListingOffers(ctx context.Context, listingID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM lease_pricing WHERE listing_id = $1`, listingID)
	return eris.Wrapf(err, "postgres: delete offers for listing %s", listingID)
}

func (s *PostgresStore) DeleteListingRow(ctx context.Context, listingID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1`, listingID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete listing %s", listingID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: listing %s", listingID)
	}
	return nil
}

// --- reference models ---

func (s *PostgresStore) SeedModels(ctx context.Context, pairs [][2]string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin seed models")
	}
	defer tx.Rollback(ctx)

	for _, p := range pairs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO models (make, model) VALUES ($1, $2) ON CONFLICT DO NOTHING`, p[0], p[1]); err != nil {
			return eris.Wrapf(err, "postgres: seed model %s %s", p[0], p[1])
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit seed models")
}

func (s *PostgresStore) KnownModels(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT make, model FROM models`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: known models")
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var mk, md string
		if err := rows.Scan(&mk, &md); err != nil {
			return nil, eris.Wrap(err, "postgres: scan model")
		}
		known[modelKey(mk, md)] = true
	}
	return known, eris.Wrap(rows.Err(), "postgres: known models iterate")
}

// --- scan helpers ---

func scanSessionPg(row pgx.Row) (*model.ExtractionSession, error) {
	var sess model.ExtractionSession
	var status string
	var appliedAt *time.Time
	err := row.Scan(&sess.ID, &sess.SellerID, &status,
		&sess.Counts.Created, &sess.Counts.Updated, &sess.Counts.Deleted, &sess.Counts.Unchanged,
		&sess.CreatedAt, &appliedAt, &sess.AppliedBy)
	if err != nil {
		return nil, err
	}
	sess.Status = model.SessionStatus(status)
	sess.AppliedAt = appliedAt
	return &sess, nil
}

func scanListingPg(row pgx.Row) (*model.ExistingListing, error) {
	var l model.ExistingListing
	err := row.Scan(&l.ID, &l.SellerID, &l.Make, &l.Model, &l.Variant, &l.Transmission,
		&l.FuelType, &l.BodyType, &l.Horsepower, &l.Year, &l.WLTPRangeKM, &l.CO2Emission,
		&l.MonthlyPrice, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func scanChangePg(row pgx.Row) (*model.Change, error) {
	var ch model.Change
	var changeType, matchMethod, status string
	var listingID *string
	var extractedJSON, diffJSON []byte
	var appliedAt *time.Time

	err := row.Scan(&ch.ID, &ch.SessionID, &changeType, &listingID, &extractedJSON, &diffJSON,
		&ch.Confidence, &matchMethod, &status, &ch.Error, &appliedAt, &ch.AppliedBy, &ch.CreatedAt)
	if err != nil {
		return nil, err
	}

	ch.ChangeType = model.ChangeType(changeType)
	ch.MatchMethod = model.MatchMethod(matchMethod)
	ch.Status = model.ChangeStatus(status)
	ch.ExistingListingID = listingID
	ch.AppliedAt = appliedAt

	if len(extractedJSON) > 0 {
		ch.ExtractedData = &model.ExtractedVehicle{}
		if err := json.Unmarshal(extractedJSON, ch.ExtractedData); err != nil {
			return nil, eris.Wrap(err, "unmarshal extracted data")
		}
	}
	if len(diffJSON) > 0 {
		ch.Diff = &model.ChangeDiff{}
		if err := json.Unmarshal(diffJSON, ch.Diff); err != nil {
			return nil, eris.Wrap(err, "unmarshal diff")
		}
	}
	return &ch, nil
}
