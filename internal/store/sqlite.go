package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"ticketflow/internal/domain"
)

// ErrStaleIssue is returned when a guarded escalation update matched no row,
// meaning the issue was resolved or advanced concurrently.
var ErrStaleIssue = errors.New("issue already advanced or terminal")

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS events (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  starts_at DATETIME NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('DRAFT','PUBLISHED','CANCELED')) DEFAULT 'DRAFT',
  approved INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_events_window ON events(status, approved, starts_at);
CREATE TABLE IF NOT EXISTS registrations (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  attendee_id TEXT NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('ACTIVE','CANCELED')) DEFAULT 'ACTIVE',
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(event_id) REFERENCES events(id)
);
CREATE INDEX IF NOT EXISTS idx_registrations_event ON registrations(event_id, status);
CREATE TABLE IF NOT EXISTS issues (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  reporter_id TEXT NOT NULL,
  assignee_id TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL CHECK(status IN ('OPEN','ESCALATED','RESOLVED','CLOSED')) DEFAULT 'OPEN',
  escalation_level INTEGER NOT NULL DEFAULT 0,
  last_escalated_at DATETIME,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_issues_open ON issues(status, created_at);
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  recipient_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  title TEXT NOT NULL,
  body TEXT NOT NULL DEFAULT '',
  payload BLOB,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_dedup ON notifications(kind, entity_id, recipient_id);
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  external_ref TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL CHECK(status IN ('PENDING','CONFIRMED','FAILED','EXPIRED')) DEFAULT 'PENDING',
  amount_cents INTEGER NOT NULL DEFAULT 0,
  last_checked_at DATETIME,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_payments_pending ON payments(status, created_at);
`
	_, err := db.Exec(schema)
	return errors.Wrap(err, "ensure schema")
}

type Repository interface {
	// Event reads and fixture writes. Events are owned upstream; the engine
	// only selects them by window.
	CreateEvent(ctx context.Context, e domain.Event) (string, error)
	EventsStartingBetween(ctx context.Context, start, end time.Time) ([]domain.Event, error)

	CreateRegistration(ctx context.Context, r domain.Registration) (string, error)
	ActiveRegistrations(ctx context.Context, eventID string) ([]domain.Registration, error)

	CreateIssue(ctx context.Context, i domain.Issue) (string, error)
	OpenIssues(ctx context.Context) ([]domain.Issue, error)
	GetIssue(ctx context.Context, id string) (domain.Issue, error)
	AdvanceIssue(ctx context.Context, id string, level int, assignee string, at time.Time) error

	CreateNotification(ctx context.Context, n domain.Notification) (bool, error)
	RecentNotifications(ctx context.Context, limit int) ([]domain.Notification, error)

	CreatePayment(ctx context.Context, p domain.PaymentRecord) (string, error)
	PendingPayments(ctx context.Context) ([]domain.PaymentRecord, error)
	SetPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus, at time.Time) error
	TouchPaymentChecked(ctx context.Context, id string, at time.Time) error

	PurgeNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error)
	PurgeTerminalIssuesBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type sqliteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) Repository { return &sqliteRepo{db: db} }

func (r *sqliteRepo) CreateEvent(ctx context.Context, e domain.Event) (string, error) {
	id := e.ID
	if id == "" {
		id = "evt_" + uuid.NewString()
	}
	if e.Status == "" {
		e.Status = domain.EventStatusDraft
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO events (id,title,location,starts_at,status,approved,created_at)
VALUES (?,?,?,?,?,?,CURRENT_TIMESTAMP)
`, id, e.Title, e.Location, e.StartsAt.UTC(), e.Status, e.Approved)
	return id, errors.Wrap(err, "create event")
}

func (r *sqliteRepo) EventsStartingBetween(ctx context.Context, start, end time.Time) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id,title,location,starts_at,status,approved,created_at
FROM events
WHERE status='PUBLISHED' AND approved=1 AND starts_at >= ? AND starts_at < ?
ORDER BY starts_at, id`, start.UTC(), end.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "select events in window")
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.Title, &e.Location, &e.StartsAt, &e.Status, &e.Approved, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *sqliteRepo) CreateRegistration(ctx context.Context, reg domain.Registration) (string, error) {
	id := reg.ID
	if id == "" {
		id = "reg_" + uuid.NewString()
	}
	if reg.Status == "" {
		reg.Status = domain.RegistrationStatusActive
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO registrations (id,event_id,attendee_id,status,created_at)
VALUES (?,?,?,?,CURRENT_TIMESTAMP)
`, id, reg.EventID, reg.AttendeeID, reg.Status)
	return id, errors.Wrap(err, "create registration")
}

func (r *sqliteRepo) ActiveRegistrations(ctx context.Context, eventID string) ([]domain.Registration, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id,event_id,attendee_id,status,created_at
FROM registrations
WHERE event_id=? AND status='ACTIVE'
ORDER BY created_at, id`, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "select registrations")
	}
	defer rows.Close()

	var regs []domain.Registration
	for rows.Next() {
		var reg domain.Registration
		if err := rows.Scan(&reg.ID, &reg.EventID, &reg.AttendeeID, &reg.Status, &reg.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan registration")
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func (r *sqliteRepo) CreateIssue(ctx context.Context, i domain.Issue) (string, error) {
	id := i.ID
	if id == "" {
		id = "iss_" + uuid.NewString()
	}
	if i.Status == "" {
		i.Status = domain.IssueStatusOpen
	}
	createdAt := i.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var lastEscalated interface{}
	if i.LastEscalatedAt != nil {
		lastEscalated = i.LastEscalatedAt.UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO issues (id,title,reporter_id,assignee_id,status,escalation_level,last_escalated_at,created_at)
VALUES (?,?,?,?,?,?,?,?)
`, id, i.Title, i.ReporterID, i.AssigneeID, i.Status, i.EscalationLevel, lastEscalated, createdAt.UTC())
	return id, errors.Wrap(err, "create issue")
}

func (r *sqliteRepo) OpenIssues(ctx context.Context) ([]domain.Issue, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id,title,reporter_id,assignee_id,status,escalation_level,last_escalated_at,created_at
FROM issues
WHERE status IN ('OPEN','ESCALATED')
ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "select open issues")
	}
	defer rows.Close()

	var issues []domain.Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, i)
	}
	return issues, rows.Err()
}

func (r *sqliteRepo) GetIssue(ctx context.Context, id string) (domain.Issue, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id,title,reporter_id,assignee_id,status,escalation_level,last_escalated_at,created_at
FROM issues WHERE id=?`, id)
	return scanIssue(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (domain.Issue, error) {
	var i domain.Issue
	var lastEscalated sql.NullTime
	if err := row.Scan(&i.ID, &i.Title, &i.ReporterID, &i.AssigneeID, &i.Status, &i.EscalationLevel, &lastEscalated, &i.CreatedAt); err != nil {
		return domain.Issue{}, errors.Wrap(err, "scan issue")
	}
	if lastEscalated.Valid {
		t := lastEscalated.Time
		i.LastEscalatedAt = &t
	}
	return i, nil
}

// AdvanceIssue moves an issue to the given escalation level. The WHERE clause
// guards the monotonic-level invariant: a terminal or already-advanced issue
// matches no row and the call returns ErrStaleIssue.
func (r *sqliteRepo) AdvanceIssue(ctx context.Context, id string, level int, assignee string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE issues
SET status='ESCALATED', escalation_level=?, assignee_id=?, last_escalated_at=?
WHERE id=? AND status IN ('OPEN','ESCALATED') AND escalation_level < ?
`, level, assignee, at.UTC(), id, level)
	if err != nil {
		return errors.Wrap(err, "advance issue")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "advance issue rows affected")
	}
	if n == 0 {
		return errors.WithDetailf(ErrStaleIssue, "issue %s level %d", id, level)
	}
	return nil
}

// CreateNotification inserts with ON CONFLICT DO NOTHING over the
// (kind, entity, recipient) dedup index. Returns false when an identical
// notification already exists.
func (r *sqliteRepo) CreateNotification(ctx context.Context, n domain.Notification) (bool, error) {
	id := n.ID
	if id == "" {
		id = "ntf_" + uuid.NewString()
	}
	res, err := r.db.ExecContext(ctx, `
INSERT INTO notifications (id,recipient_id,kind,entity_id,title,body,payload,created_at)
VALUES (?,?,?,?,?,?,?,CURRENT_TIMESTAMP)
ON CONFLICT(kind,entity_id,recipient_id) DO NOTHING
`, id, n.RecipientID, n.Kind, n.EntityID, n.Title, n.Body, n.Payload)
	if err != nil {
		return false, errors.Wrap(err, "create notification")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "create notification rows affected")
	}
	return rows > 0, nil
}

func (r *sqliteRepo) RecentNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id,recipient_id,kind,entity_id,title,body,payload,created_at
FROM notifications ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select recent notifications")
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Kind, &n.EntityID, &n.Title, &n.Body, &n.Payload, &n.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *sqliteRepo) CreatePayment(ctx context.Context, p domain.PaymentRecord) (string, error) {
	id := p.ID
	if id == "" {
		id = "pay_" + uuid.NewString()
	}
	if p.Status == "" {
		p.Status = domain.PaymentStatusPending
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO payments (id,external_ref,status,amount_cents,created_at)
VALUES (?,?,?,?,?)
`, id, p.ExternalRef, p.Status, p.AmountCents, createdAt.UTC())
	return id, errors.Wrap(err, "create payment")
}

func (r *sqliteRepo) PendingPayments(ctx context.Context) ([]domain.PaymentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id,external_ref,status,amount_cents,last_checked_at,created_at
FROM payments WHERE status='PENDING'
ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "select pending payments")
	}
	defer rows.Close()

	var out []domain.PaymentRecord
	for rows.Next() {
		var p domain.PaymentRecord
		var lastChecked sql.NullTime
		if err := rows.Scan(&p.ID, &p.ExternalRef, &p.Status, &p.AmountCents, &lastChecked, &p.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan payment")
		}
		if lastChecked.Valid {
			t := lastChecked.Time
			p.LastCheckedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *sqliteRepo) SetPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE payments SET status=?, last_checked_at=? WHERE id=?`, status, at.UTC(), id)
	return errors.Wrapf(err, "set payment %s status", id)
}

func (r *sqliteRepo) TouchPaymentChecked(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE payments SET last_checked_at=? WHERE id=?`, at.UTC(), id)
	return errors.Wrapf(err, "touch payment %s", id)
}

func (r *sqliteRepo) PurgeNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "purge notifications")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *sqliteRepo) PurgeTerminalIssuesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM issues WHERE status IN ('RESOLVED','CLOSED') AND created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "purge terminal issues")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
