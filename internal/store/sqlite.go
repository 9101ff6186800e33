package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/leasingborsen/reconcile-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// runs and the test suite; semantics mirror the Postgres backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path with WAL mode and
// foreign keys enforced.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS listings (
	id            TEXT PRIMARY KEY,
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
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_listings_seller ON listings(seller_id);

CREATE TABLE IF NOT EXISTS lease_pricing (
	id               TEXT PRIMARY KEY,
	listing_id       TEXT NOT NULL REFERENCES listings(id),
	monthly_price    INTEGER NOT NULL,
	first_payment    INTEGER NOT NULL DEFAULT 0,
	period_months    INTEGER NOT NULL,
	mileage_per_year INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lease_pricing_listing ON lease_pricing(listing_id);

CREATE TABLE IF NOT EXISTS extraction_sessions (
	id              TEXT PRIMARY KEY,
	seller_id       TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	created_count   INTEGER NOT NULL DEFAULT 0,
	updated_count   INTEGER NOT NULL DEFAULT 0,
	deleted_count   INTEGER NOT NULL DEFAULT 0,
	unchanged_count INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL,
	applied_at      DATETIME,
	applied_by      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_seller ON extraction_sessions(seller_id);

CREATE TABLE IF NOT EXISTS extraction_listing_changes (
	id                  TEXT PRIMARY KEY,
	session_id          TEXT NOT NULL REFERENCES extraction_sessions(id),
	change_type         TEXT NOT NULL,
	existing_listing_id TEXT REFERENCES listings(id),
	extracted_data      TEXT,
	diff                TEXT,
	confidence          REAL NOT NULL DEFAULT 0,
	match_method        TEXT NOT NULL DEFAULT 'unmatched',
	status              TEXT NOT NULL DEFAULT 'pending',
	error               TEXT NOT NULL DEFAULT '',
	applied_at          DATETIME,
	applied_by          TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_changes_session ON extraction_listing_changes(session_id);
CREATE INDEX IF NOT EXISTS idx_changes_existing_listing ON extraction_listing_changes(existing_listing_id);

CREATE TABLE IF NOT EXISTS models (
	make  TEXT NOT NULL,
	model TEXT NOT NULL,
	PRIMARY KEY (make, model)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, sellerID string, counts model.SessionCounts) (*model.ExtractionSession, error) {
	sess := &model.ExtractionSession{
		ID:        uuid.New().String(),
		SellerID:  sellerID,
		Status:    model.SessionStatusPending,
		Counts:    counts,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_sessions (id, seller_id, status, created_count, updated_count, deleted_count, unchanged_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.SellerID, string(sess.Status),
		counts.Created, counts.Updated, counts.Deleted, counts.Unchanged, sess.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert session")
	}
	return sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.ExtractionSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, seller_id, status, created_count, updated_count, deleted_count, unchanged_count, created_at, applied_at, applied_by
		 FROM extraction_sessions WHERE id = ?`, sessionID)

	var sess model.ExtractionSession
	var appliedAt sql.NullTime
	err := row.Scan(&sess.ID, &sess.SellerID, &sess.Status,
		&sess.Counts.Created, &sess.Counts.Updated, &sess.Counts.Deleted, &sess.Counts.Unchanged,
		&sess.CreatedAt, &appliedAt, &sess.AppliedBy)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: session %s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get session")
	}
	if appliedAt.Valid {
		t := appliedAt.Time
		sess.AppliedAt = &t
	}
	return &sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, sellerID string, limit int) ([]model.ExtractionSession, error) {
	query := `SELECT id, seller_id, status, created_count, updated_count, deleted_count, unchanged_count, created_at, applied_at, applied_by
	          FROM extraction_sessions WHERE 1=1`
	var args []any
	if sellerID != "" {
		query += ` AND seller_id = ?`
		args = append(args, sellerID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.ExtractionSession
	for rows.Next() {
		var sess model.ExtractionSession
		var appliedAt sql.NullTime
		if err := rows.Scan(&sess.ID, &sess.SellerID, &sess.Status,
			&sess.Counts.Created, &sess.Counts.Updated, &sess.Counts.Deleted, &sess.Counts.Unchanged,
			&sess.CreatedAt, &appliedAt, &sess.AppliedBy); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		if appliedAt.Valid {
			t := appliedAt.Time
			sess.AppliedAt = &t
		}
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_sessions SET status = ? WHERE id = ?`, string(status), sessionID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session status %s", sessionID)
	}
	return checkRowsAffected(res, "session", sessionID)
}

func (s *SQLiteStore) MarkSessionApplied(ctx context.Context, sessionID string, status model.SessionStatus, appliedBy string, appliedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_sessions SET status = ?, applied_by = ?, applied_at = ? WHERE id = ?`,
		string(status), appliedBy, appliedAt, sessionID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark session applied %s", sessionID)
	}
	return checkRowsAffected(res, "session", sessionID)
}

// --- changes ---

func (s *SQLiteStore) SaveChanges(ctx context.Context, sessionID string, changes []model.Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save changes")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO extraction_listing_changes
		 (id, session_id, change_type, existing_listing_id, extracted_data, diff, confidence, match_method, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare save changes")
	}
	defer stmt.Close()

	for _, ch := range changes {
		extractedJSON, diffJSON, err := marshalChangePayloads(&ch)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, sessionID, string(ch.ChangeType), ch.ExistingListingID,
			extractedJSON, diffJSON, ch.Confidence, string(ch.MatchMethod),
			string(ch.Status), ch.Error, ch.CreatedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert change %s", ch.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save changes")
}

func (s *SQLiteStore) GetChange(ctx context.Context, changeID string) (*model.Change, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+changeColumns+`
		 FROM extraction_listing_changes WHERE id = ?`, changeID)
	ch, err := scanChange(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: change %s", changeID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get change")
	}
	return ch, nil
}

func (s *SQLiteStore) ListChanges(ctx context.Context, sessionID string) ([]model.Change, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+changeColumns+`
		 FROM extraction_listing_changes WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list changes")
	}
	defer rows.Close()

	var changes []model.Change
	for rows.Next() {
		ch, err := scanChange(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan change")
		}
		changes = append(changes, *ch)
	}
	return changes, eris.Wrap(rows.Err(), "sqlite: list changes iterate")
}

func (s *SQLiteStore) MarkChangeApplied(ctx context.Context, changeID, appliedBy string, appliedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_listing_changes SET status = ?, applied_by = ?, applied_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.ChangeStatusApplied), appliedBy, appliedAt, changeID, string(model.ChangeStatusPending))
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark change applied %s", changeID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Distinguish a missing change from a terminal one.
		var status string
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM extraction_listing_changes WHERE id = ?`, changeID).Scan(&status)
		if err == sql.ErrNoRows {
			return eris.Wrapf(ErrNotFound, "sqlite: change %s", changeID)
		}
		if err != nil {
			return eris.Wrap(err, "sqlite: check change status")
		}
		return eris.Wrapf(ErrAlreadyApplied, "sqlite: change %s is %s", changeID, status)
	}
	return nil
}

func (s *SQLiteStore) MarkChangeRejected(ctx context.Context, changeID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_listing_changes SET status = ? WHERE id = ? AND status = ?`,
		string(model.ChangeStatusRejected), changeID, string(model.ChangeStatusPending))
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark change rejected %s", changeID)
	}
	return checkRowsAffected(res, "pending change", changeID)
}

func (s *SQLiteStore) ClearChangeReferences(ctx context.Context, listingID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_listing_changes SET existing_listing_id = NULL WHERE existing_listing_id = ?`,
		listingID)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: clear change references %s", listingID)
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) CountChangeReferences(ctx context.Context, listingID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM extraction_listing_changes WHERE existing_listing_id = ?`,
		listingID).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count change references")
}

// --- inventory ---

func (s *SQLiteStore) ListingsBySeller(ctx context.Context, sellerID string) ([]model.ExistingListing, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+listingColumns+`
		 FROM listings WHERE seller_id = ? ORDER BY id`, sellerID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: listings by seller")
	}
	defer rows.Close()

	var listings []model.ExistingListing
	index := make(map[string]int)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan listing")
		}
		index[l.ID] = len(listings)
		listings = append(listings, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: listings iterate")
	}

	offerRows, err := s.db.QueryContext(ctx,
		`SELECT p.listing_id, p.monthly_price, p.first_payment, p.period_months, p.mileage_per_year
		 FROM lease_pricing p JOIN listings l ON l.id = p.listing_id
		 WHERE l.seller_id = ? ORDER BY p.listing_id, p.period_months, p.mileage_per_year`, sellerID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: offers by seller")
	}
	defer offerRows.Close()

	for offerRows.Next() {
		var listingID string
		var o model.Offer
		if err := offerRows.Scan(&listingID, &o.MonthlyPrice, &o.FirstPayment, &o.PeriodMonths, &o.MileagePerYear); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan offer")
		}
		if i, ok := index[listingID]; ok {
			listings[i].Offers = append(listings[i].Offers, o)
		}
	}
	return listings, eris.Wrap(offerRows.Err(), "sqlite: offers iterate")
}

func (s *SQLiteStore) GetListing(ctx context.Context, listingID string) (*model.ExistingListing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, listingID)
	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: listing %s", listingID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get listing")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT monthly_price, first_payment, period_months, mileage_per_year
		 FROM lease_pricing WHERE listing_id = ? ORDER BY period_months, mileage_per_year`, listingID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get listing offers")
	}
	defer rows.Close()
	for rows.Next() {
		var o model.Offer
		if err := rows.Scan(&o.MonthlyPrice, &o.FirstPayment, &o.PeriodMonths, &o.MileagePerYear); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan offer")
		}
		l.Offers = append(l.Offers, o)
	}
	return l, eris.Wrap(rows.Err(), "sqlite: offers iterate")
}

func (s *SQLiteStore) InsertListing(ctx context.Context, l *model.ExistingListing) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO listings (id, seller_id, make, model, variant, transmission, fuel_type, body_type,
		                       horsepower, year, wltp_range_km, co2_emission, monthly_price, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.SellerID, l.Make, l.Model, l.Variant, l.Transmission, l.FuelType, l.BodyType,
		l.Horsepower, l.Year, l.WLTPRangeKM, l.CO2Emission, l.MonthlyPrice, l.CreatedAt, l.UpdatedAt)
	return eris.Wrapf(err, "sqlite: insert listing %s", l.ID)
}

func (s *SQLiteStore) InsertOffers(ctx context.Context, listingID string, offers []model.Offer) error {
	if len(offers) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert offers")
	}
	defer tx.Rollback()

	for _, o := range offers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lease_pricing (id, listing_id, monthly_price, first_payment, period_months, mileage_per_year)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), listingID, o.MonthlyPrice, o.FirstPayment, o.PeriodMonths, o.MileagePerYear,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert offer for listing %s", listingID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert offers")
}

func (s *SQLiteStore) UpdateListing(ctx context.Context, l *model.ExistingListing) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update listing")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE listings SET make = ?, model = ?, variant = ?, transmission = ?, fuel_type = ?, body_type = ?,
		        horsepower = ?, year = ?, wltp_range_km = ?, co2_emission = ?, monthly_price = ?, updated_at = ?
		 WHERE id = ?`,
		l.Make, l.Model, l.Variant, l.Transmission, l.FuelType, l.BodyType,
		l.Horsepower, l.Year, l.WLTPRangeKM, l.CO2Emission, l.MonthlyPrice, time.Now().UTC(), l.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update listing %s", l.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: listing %s", l.ID)
	}

	// Offer replacement is delete-then-insert, inside the same
	// transaction as the scalar update.
	if _, err := tx.ExecContext(ctx, `DELETE FROM lease_pricing WHERE listing_id = ?`, l.ID); err != nil {
		return eris.Wrapf(err, "sqlite: delete offers for listing %s", l.ID)
	}
	for _, o := range l.Offers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lease_pricing (id, listing_id, monthly_price, first_payment, period_months, mileage_per_year)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), l.ID, o.MonthlyPrice, o.FirstPayment, o.PeriodMonths, o.MileagePerYear,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert offer for listing %s", l.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit update listing")
}

func (s *SQLiteStore) DeleteListingOffers(ctx context.Context, listingID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM lease_pricing WHERE listing_id = ?`, listingID)
	return eris.Wrapf(err, "sqlite: delete offers for listing %s", listingID)
}

func (s *SQLiteStore) DeleteListingRow(ctx context.Context, listingID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, listingID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete listing %s", listingID)
	}
	return checkRowsAffected(res, "listing", listingID)
}

// --- reference models ---

func (s *SQLiteStore) SeedModels(ctx context.Context, pairs [][2]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin seed models")
	}
	defer tx.Rollback()

	for _, p := range pairs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO models (make, model) VALUES (?, ?)`, p[0], p[1]); err != nil {
			return eris.Wrapf(err, "sqlite: seed model %s %s", p[0], p[1])
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit seed models")
}

func (s *SQLiteStore) KnownModels(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT make, model FROM models`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: known models")
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var mk, md string
		if err := rows.Scan(&mk, &md); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan model")
		}
		known[modelKey(mk, md)] = true
	}
	return known, eris.Wrap(rows.Err(), "sqlite: known models iterate")
}

// --- helpers ---

const listingColumns = `id, seller_id, make, model, variant, transmission, fuel_type, body_type,
	horsepower, year, wltp_range_km, co2_emission, monthly_price, created_at, updated_at`

const changeColumns = `id, session_id, change_type, existing_listing_id, extracted_data, diff,
	confidence, match_method, status, error, applied_at, applied_by, created_at`

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanListing(row scannable) (*model.ExistingListing, error) {
	var l model.ExistingListing
	err := row.Scan(&l.ID, &l.SellerID, &l.Make, &l.Model, &l.Variant, &l.Transmission,
		&l.FuelType, &l.BodyType, &l.Horsepower, &l.Year, &l.WLTPRangeKM, &l.CO2Emission,
		&l.MonthlyPrice, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func scanChange(row scannable) (*model.Change, error) {
	var ch model.Change
	var listingID sql.NullString
	var extractedJSON, diffJSON sql.NullString
	var appliedAt sql.NullTime

	err := row.Scan(&ch.ID, &ch.SessionID, &ch.ChangeType, &listingID, &extractedJSON, &diffJSON,
		&ch.Confidence, &ch.MatchMethod, &ch.Status, &ch.Error, &appliedAt, &ch.AppliedBy, &ch.CreatedAt)
	if err != nil {
		return nil, err
	}

	if listingID.Valid {
		id := listingID.String
		ch.ExistingListingID = &id
	}
	if appliedAt.Valid {
		t := appliedAt.Time
		ch.AppliedAt = &t
	}
	if extractedJSON.Valid && extractedJSON.String != "" {
		ch.ExtractedData = &model.ExtractedVehicle{}
		if err := json.Unmarshal([]byte(extractedJSON.String), ch.ExtractedData); err != nil {
			return nil, eris.Wrap(err, "unmarshal extracted data")
		}
	}
	if diffJSON.Valid && diffJSON.String != "" {
		ch.Diff = &model.ChangeDiff{}
		if err := json.Unmarshal([]byte(diffJSON.String), ch.Diff); err != nil {
			return nil, eris.Wrap(err, "unmarshal diff")
		}
	}
	return &ch, nil
}

func marshalChangePayloads(ch *model.Change) (extracted, diff *string, err error) {
	if ch.ExtractedData != nil {
		raw, err := json.Marshal(ch.ExtractedData)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "marshal extracted data for change %s", ch.ID)
		}
		s := string(raw)
		extracted = &s
	}
	if ch.Diff != nil {
		raw, err := json.Marshal(ch.Diff)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "marshal diff for change %s", ch.ID)
		}
		s := string(raw)
		diff = &s
	}
	return extracted, diff, nil
}
