package domain

import (
	"fmt"
	"time"
)

// EventStatus enumerates lifecycle states for events.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "DRAFT"
	EventStatusPublished EventStatus = "PUBLISHED"
	EventStatusCanceled  EventStatus = "CANCELED"
)

// Event is an upstream-owned record; this engine only reads it.
type Event struct {
	ID        string
	Title     string
	Location  string
	StartsAt  time.Time
	Status    EventStatus
	Approved  bool
	CreatedAt time.Time
}

// RegistrationStatus enumerates lifecycle states for registrations.
type RegistrationStatus string

const (
	RegistrationStatusActive   RegistrationStatus = "ACTIVE"
	RegistrationStatusCanceled RegistrationStatus = "CANCELED"
)

type Registration struct {
	ID         string
	EventID    string
	AttendeeID string
	Status     RegistrationStatus
	CreatedAt  time.Time
}

// IssueStatus enumerates the escalation lifecycle. RESOLVED and CLOSED are
// terminal: the escalation level is frozen once either is reached.
type IssueStatus string

const (
	IssueStatusOpen      IssueStatus = "OPEN"
	IssueStatusEscalated IssueStatus = "ESCALATED"
	IssueStatusResolved  IssueStatus = "RESOLVED"
	IssueStatusClosed    IssueStatus = "CLOSED"
)

// Terminal reports whether no further escalation transitions apply.
func (s IssueStatus) Terminal() bool {
	return s == IssueStatusResolved || s == IssueStatusClosed
}

// Issue is an unresolved problem report working its way up an ownership
// chain. EscalationLevel starts at 0 and only ever increases.
type Issue struct {
	ID              string
	Title           string
	ReporterID      string
	AssigneeID      string
	Status          IssueStatus
	EscalationLevel int
	LastEscalatedAt *time.Time
	CreatedAt       time.Time
}

// NotificationKind values double as the dedup discriminator: reminder kinds
// encode the window and escalation kinds encode the level, so
// (kind, entity, recipient) uniquely identifies one logical send.
type NotificationKind string

const (
	KindEventReminderDayAhead  NotificationKind = "EVENT_REMINDER_H1"
	KindEventReminderFinalCall NotificationKind = "EVENT_REMINDER_H0"
)

// EscalationKind returns the notification kind for an escalation to the given
// level, e.g. ISSUE_ESCALATION_L2.
func EscalationKind(level int) NotificationKind {
	return NotificationKind(fmt.Sprintf("ISSUE_ESCALATION_L%d", level))
}

type Notification struct {
	ID          string
	RecipientID string
	Kind        NotificationKind
	EntityID    string
	Title       string
	Body        string
	Payload     []byte
	CreatedAt   time.Time
}

// PaymentStatus enumerates local settlement states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusConfirmed PaymentStatus = "CONFIRMED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusExpired   PaymentStatus = "EXPIRED"
)

type PaymentRecord struct {
	ID            string
	ExternalRef   string
	Status        PaymentStatus
	AmountCents   int64
	LastCheckedAt *time.Time
	CreatedAt     time.Time
}
