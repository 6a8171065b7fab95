package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding bookings, availability, reminder
// settings and recommendation logs.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "slotwise.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection: SQLite serialises writers anyway, and an in-memory
	// database only exists on the connection that created it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests and ad-hoc maintenance.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Availability ---

// AddSlots inserts availability slots for a primary user. Times that already
// exist for that user are skipped. Returns the number of slots created.
func (s *Store) AddSlots(ctx context.Context, primaryUserID int64, times []time.Time) (int, error) {
	if len(times) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning slot transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO avail_slots (primary_user_id, slot_time, is_booked) VALUES (?, ?, 0)
		ON CONFLICT(primary_user_id, slot_time) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("preparing slot insert: %w", err)
	}
	defer stmt.Close()

	created := 0
	for _, t := range times {
		res, err := stmt.ExecContext(ctx, primaryUserID, formatTime(t))
		if err != nil {
			return 0, fmt.Errorf("inserting slot %s: %w", formatTime(t), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		created += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing slots: %w", err)
	}
	return created, nil
}

// FutureSlots returns every slot of the primary user with from <= slot_time <= to,
// booked or not, ordered by time.
func (s *Store) FutureSlots(ctx context.Context, primaryUserID int64, from, to time.Time) ([]Slot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, primary_user_id, slot_time, is_booked
		FROM avail_slots
		WHERE primary_user_id = ? AND slot_time >= ? AND slot_time <= ?
		ORDER BY slot_time ASC, id ASC`,
		primaryUserID, formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Slot
	for rows.Next() {
		var sl Slot
		var slotTime string
		var booked int
		if err := rows.Scan(&sl.ID, &sl.PrimaryUserID, &slotTime, &booked); err != nil {
			return nil, err
		}
		if sl.SlotTime, err = parseTime(slotTime); err != nil {
			return nil, fmt.Errorf("parsing slot_time for slot %d: %w", sl.ID, err)
		}
		sl.IsBooked = booked != 0
		results = append(results, sl)
	}
	return results, rows.Err()
}

func (s *Store) GetSlot(ctx context.Context, id int64) (Slot, error) {
	var sl Slot
	var slotTime string
	var booked int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, primary_user_id, slot_time, is_booked FROM avail_slots WHERE id = ?`, id,
	).Scan(&sl.ID, &sl.PrimaryUserID, &slotTime, &booked)
	if errors.Is(err, sql.ErrNoRows) {
		return Slot{}, ErrNotFound
	}
	if err != nil {
		return Slot{}, err
	}
	if sl.SlotTime, err = parseTime(slotTime); err != nil {
		return Slot{}, fmt.Errorf("parsing slot_time: %w", err)
	}
	sl.IsBooked = booked != 0
	return sl, nil
}

// --- Bookings ---

const bookingColumns = `id, primary_user_id, secondary_user_id, slot_id, start_time, end_time, status, created_at`

// BookingHistory returns up to limit bookings for the pair, newest start_time first.
func (s *Store) BookingHistory(ctx context.Context, primaryUserID, secondaryUserID int64, limit int) ([]Booking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE primary_user_id = ? AND secondary_user_id = ?
		ORDER BY start_time DESC, id DESC
		LIMIT ?`,
		primaryUserID, secondaryUserID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, b)
	}
	return results, rows.Err()
}

// LatestBooking returns the booking with the latest start_time for the pair,
// regardless of status.
func (s *Store) LatestBooking(ctx context.Context, primaryUserID, secondaryUserID int64) (Booking, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE primary_user_id = ? AND secondary_user_id = ?
		ORDER BY start_time DESC, id DESC
		LIMIT 1`,
		primaryUserID, secondaryUserID,
	)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	return b, err
}

func (s *Store) GetBooking(ctx context.Context, id int64) (Booking, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	return b, err
}

// ConfirmBooking inserts a booking and, when it references a slot, flips that
// slot to booked. Both writes commit together or not at all. The slot must
// belong to the booking's primary user and be free. A slot booking starts at
// the stored slot time whatever StartTime says.
func (s *Store) ConfirmBooking(ctx context.Context, b Booking) (Booking, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Booking{}, fmt.Errorf("beginning booking transaction: %w", err)
	}
	defer tx.Rollback()

	if b.SlotID != nil {
		res, err := tx.ExecContext(ctx, `
			UPDATE avail_slots SET is_booked = 1
			WHERE id = ? AND primary_user_id = ? AND is_booked = 0`,
			*b.SlotID, b.PrimaryUserID,
		)
		if err != nil {
			return Booking{}, fmt.Errorf("flipping slot %d: %w", *b.SlotID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return Booking{}, err
		}
		if n == 0 {
			var booked int
			err := tx.QueryRowContext(ctx,
				`SELECT is_booked FROM avail_slots WHERE id = ? AND primary_user_id = ?`,
				*b.SlotID, b.PrimaryUserID,
			).Scan(&booked)
			if errors.Is(err, sql.ErrNoRows) {
				return Booking{}, ErrNotFound
			}
			if err != nil {
				return Booking{}, err
			}
			return Booking{}, ErrSlotTaken
		}

		// The slot's own time wins over the caller's; the requested duration is kept.
		var slotTime string
		if err := tx.QueryRowContext(ctx, `SELECT slot_time FROM avail_slots WHERE id = ?`, *b.SlotID).Scan(&slotTime); err != nil {
			return Booking{}, fmt.Errorf("reading slot %d: %w", *b.SlotID, err)
		}
		start, err := parseTime(slotTime)
		if err != nil {
			return Booking{}, fmt.Errorf("parsing slot %d time: %w", *b.SlotID, err)
		}
		duration := b.EndTime.Sub(b.StartTime)
		b.StartTime = start
		b.EndTime = start.Add(duration)
	}

	if b.Status == "" {
		b.Status = StatusBooked
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (primary_user_id, secondary_user_id, slot_id, start_time, end_time, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.PrimaryUserID, b.SecondaryUserID, nullableID(b.SlotID),
		formatTime(b.StartTime), formatTime(b.EndTime), b.Status, formatTime(b.CreatedAt),
	)
	if err != nil {
		return Booking{}, fmt.Errorf("inserting booking: %w", err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return Booking{}, err
	}

	if err := tx.Commit(); err != nil {
		return Booking{}, fmt.Errorf("committing booking: %w", err)
	}
	return b, nil
}

// CancelBooking moves a booking to cancelled and releases its slot, if any.
func (s *Store) CancelBooking(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning cancel transaction: %w", err)
	}
	defer tx.Rollback()

	var slotID sql.NullInt64
	var status string
	err = tx.QueryRowContext(ctx, `SELECT slot_id, status FROM bookings WHERE id = ?`, id).Scan(&slotID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if status == StatusCancelled {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `UPDATE bookings SET status = ? WHERE id = ?`, StatusCancelled, id); err != nil {
		return fmt.Errorf("cancelling booking %d: %w", id, err)
	}
	if slotID.Valid {
		if _, err := tx.ExecContext(ctx, `UPDATE avail_slots SET is_booked = 0 WHERE id = ?`, slotID.Int64); err != nil {
			return fmt.Errorf("releasing slot %d: %w", slotID.Int64, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(r rowScanner) (Booking, error) {
	var b Booking
	var slotID sql.NullInt64
	var start, end, createdAt string
	if err := r.Scan(&b.ID, &b.PrimaryUserID, &b.SecondaryUserID, &slotID, &start, &end, &b.Status, &createdAt); err != nil {
		return Booking{}, err
	}
	if slotID.Valid {
		id := slotID.Int64
		b.SlotID = &id
	}
	var err error
	if b.StartTime, err = parseTime(start); err != nil {
		return Booking{}, fmt.Errorf("parsing start_time for booking %d: %w", b.ID, err)
	}
	if b.EndTime, err = parseTime(end); err != nil {
		return Booking{}, fmt.Errorf("parsing end_time for booking %d: %w", b.ID, err)
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return Booking{}, fmt.Errorf("parsing created_at for booking %d: %w", b.ID, err)
	}
	return b, nil
}

// --- Reminder settings ---

// UpsertReminderSetting creates or updates the reminder for a pair and (re)activates it.
// last_reminder_sent is left untouched on update.
func (s *Store) UpsertReminderSetting(ctx context.Context, primaryUserID, secondaryUserID int64, intervalDays int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminder_settings (primary_user_id, secondary_user_id, reminder_interval_days, updated_at, active)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(primary_user_id, secondary_user_id) DO UPDATE SET
			reminder_interval_days = excluded.reminder_interval_days,
			updated_at = excluded.updated_at,
			active = 1`,
		primaryUserID, secondaryUserID, intervalDays, formatTime(time.Now()),
	)
	return err
}

// DeactivateReminder turns the reminder for a pair off.
func (s *Store) DeactivateReminder(ctx context.Context, primaryUserID, secondaryUserID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reminder_settings SET active = 0, updated_at = ?
		WHERE primary_user_id = ? AND secondary_user_id = ?`,
		formatTime(time.Now()), primaryUserID, secondaryUserID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetReminderSetting(ctx context.Context, primaryUserID, secondaryUserID int64) (ReminderSetting, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, primary_user_id, secondary_user_id, reminder_interval_days, last_reminder_sent, active, updated_at
		FROM reminder_settings WHERE primary_user_id = ? AND secondary_user_id = ?`,
		primaryUserID, secondaryUserID,
	)
	rs, err := scanReminderSetting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ReminderSetting{}, ErrNotFound
	}
	return rs, err
}

func (s *Store) ActiveReminderSettings(ctx context.Context) ([]ReminderSetting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, primary_user_id, secondary_user_id, reminder_interval_days, last_reminder_sent, active, updated_at
		FROM reminder_settings WHERE active = 1 ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ReminderSetting
	for rows.Next() {
		rs, err := scanReminderSetting(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rs)
	}
	return results, rows.Err()
}

// MarkReminderSent records the time of the latest reminder attempt.
func (s *Store) MarkReminderSent(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reminder_settings SET last_reminder_sent = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReminderSetting(r rowScanner) (ReminderSetting, error) {
	var rs ReminderSetting
	var lastSent sql.NullString
	var active int
	var updatedAt string
	if err := r.Scan(&rs.ID, &rs.PrimaryUserID, &rs.SecondaryUserID, &rs.IntervalDays, &lastSent, &active, &updatedAt); err != nil {
		return ReminderSetting{}, err
	}
	rs.Active = active != 0
	if lastSent.Valid && lastSent.String != "" {
		t, err := parseTime(lastSent.String)
		if err != nil {
			return ReminderSetting{}, fmt.Errorf("parsing last_reminder_sent for setting %d: %w", rs.ID, err)
		}
		rs.LastReminderSent = &t
	}
	t, err := parseTime(updatedAt)
	if err != nil {
		return ReminderSetting{}, fmt.Errorf("parsing updated_at for setting %d: %w", rs.ID, err)
	}
	rs.UpdatedAt = t
	return rs, nil
}

// --- Recommendation logs ---

// InsertRecommendationLogs writes all rows in one transaction.
func (s *Store) InsertRecommendationLogs(ctx context.Context, logs []RecommendationLog) error {
	if len(logs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning log transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO recommendation_logs
			(session_id, primary_user_id, secondary_user_id, slot_id, slot_time,
			 slot_is_free, same_hour, same_dow, hour_diff, days_since_last, recent_count,
			 score, chosen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing log insert: %w", err)
	}
	defer stmt.Close()

	for _, l := range logs {
		createdAt := l.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			l.SessionID, l.PrimaryUserID, l.SecondaryUserID, nullableID(l.SlotID), formatTime(l.SlotTime),
			l.SlotIsFree, l.SameHour, l.SameDOW, l.HourDiff, l.DaysSinceLast, l.RecentCount,
			l.Score, l.Chosen, formatTime(createdAt),
		); err != nil {
			return fmt.Errorf("inserting log row for session %s: %w", l.SessionID, err)
		}
	}

	return tx.Commit()
}

// MarkChosen sets chosen=1 on the row matching (sessionID, slotID) when the
// session was logged for the given pair and no other row of the session is
// already chosen. It returns the number of rows that matched; repeating the
// same call matches the same row again.
func (s *Store) MarkChosen(ctx context.Context, sessionID string, primaryUserID, secondaryUserID, slotID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recommendation_logs SET chosen = 1
		WHERE session_id = ? AND slot_id = ?
		  AND primary_user_id = ? AND secondary_user_id = ?
		  AND NOT EXISTS (
			SELECT 1 FROM recommendation_logs c
			WHERE c.session_id = ? AND c.chosen = 1 AND c.slot_id <> ?
		  )`,
		sessionID, slotID, primaryUserID, secondaryUserID, sessionID, slotID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const logColumns = `id, session_id, primary_user_id, secondary_user_id, slot_id, slot_time,
	slot_is_free, same_hour, same_dow, hour_diff, days_since_last, recent_count, score, chosen, created_at`

// SessionLogs returns the rows of one session in insertion order.
func (s *Store) SessionLogs(ctx context.Context, sessionID string) ([]RecommendationLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+logColumns+` FROM recommendation_logs WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLogs(rows)
}

// RecentRecommendationLogs returns up to limit rows, newest first.
func (s *Store) RecentRecommendationLogs(ctx context.Context, limit int) ([]RecommendationLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+logColumns+` FROM recommendation_logs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLogs(rows)
}

// CountRecommendationLogs returns the total and positive row counts.
func (s *Store) CountRecommendationLogs(ctx context.Context) (total, chosen int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(chosen), 0) FROM recommendation_logs`,
	).Scan(&total, &chosen)
	return total, chosen, err
}

func collectLogs(rows *sql.Rows) ([]RecommendationLog, error) {
	var results []RecommendationLog
	for rows.Next() {
		var l RecommendationLog
		var slotID sql.NullInt64
		var slotTime, createdAt string
		if err := rows.Scan(&l.ID, &l.SessionID, &l.PrimaryUserID, &l.SecondaryUserID, &slotID, &slotTime,
			&l.SlotIsFree, &l.SameHour, &l.SameDOW, &l.HourDiff, &l.DaysSinceLast, &l.RecentCount,
			&l.Score, &l.Chosen, &createdAt); err != nil {
			return nil, err
		}
		if slotID.Valid {
			id := slotID.Int64
			l.SlotID = &id
		}
		var err error
		if l.SlotTime, err = parseTime(slotTime); err != nil {
			return nil, fmt.Errorf("parsing slot_time for log %d: %w", l.ID, err)
		}
		if l.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for log %d: %w", l.ID, err)
		}
		results = append(results, l)
	}
	return results, rows.Err()
}

// Timestamps are stored as UTC RFC3339 text so that string comparison in SQL
// matches chronological order.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
