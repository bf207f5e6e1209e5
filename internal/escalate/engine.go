package escalate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"ticketflow/internal/config"
	"ticketflow/internal/domain"
	"ticketflow/internal/notify"
	"ticketflow/internal/store"
)

// Store is the slice of the repository the engine needs.
type Store interface {
	OpenIssues(ctx context.Context) ([]domain.Issue, error)
	AdvanceIssue(ctx context.Context, id string, level int, assignee string, at time.Time) error
}

// Engine walks non-terminal issues once per run and advances each at most one
// level when its elapsed time crosses the next step's threshold. The step
// table comes from configuration; the engine itself knows no durations.
type Engine struct {
	store  Store
	sender notify.Sender
	steps  []config.EscalationStep
}

func NewEngine(st Store, sender notify.Sender, steps []config.EscalationStep) *Engine {
	return &Engine{store: st, sender: sender, steps: steps}
}

// Run evaluates every OPEN or ESCALATED issue. A failure on one issue is
// logged and the rest of the batch still runs.
func (e *Engine) Run(ctx context.Context, now time.Time) error {
	issues, err := e.store.OpenIssues(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch open issues")
	}
	if len(issues) == 0 {
		log.Debug().Msg("no issues eligible for escalation")
		return nil
	}

	for _, issue := range issues {
		if err := e.evaluate(ctx, now, issue); err != nil {
			log.Warn().Err(err).Str("issue", issue.ID).Msg("escalation skipped")
		}
	}
	return nil
}

func (e *Engine) evaluate(ctx context.Context, now time.Time, issue domain.Issue) error {
	if issue.Status.Terminal() {
		return nil
	}

	step, ok := e.step(issue.EscalationLevel + 1)
	if !ok {
		// Max level reached; the issue stays there until resolved by hand.
		return nil
	}

	since := issue.CreatedAt
	if issue.LastEscalatedAt != nil {
		since = *issue.LastEscalatedAt
	}
	if now.Sub(since) < step.After.Std() {
		return nil
	}

	if err := e.store.AdvanceIssue(ctx, issue.ID, step.Level, step.Assignee, now); err != nil {
		if errors.Is(err, store.ErrStaleIssue) {
			// Lost the race to a concurrent resolution or advance; nothing to do.
			return nil
		}
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"issue_id": issue.ID,
		"title":    issue.Title,
		"level":    step.Level,
		"reporter": issue.ReporterID,
	})
	if err != nil {
		return errors.Wrap(err, "marshal escalation payload")
	}

	created, err := e.sender.Send(ctx, domain.Notification{
		RecipientID: step.Assignee,
		Kind:        domain.EscalationKind(step.Level),
		EntityID:    issue.ID,
		Title:       fmt.Sprintf("Issue escalated to level %d", step.Level),
		Body:        fmt.Sprintf("%q is unresolved after %s and is now yours.", issue.Title, step.After.Std()),
		Payload:     payload,
	})
	if err != nil {
		return errors.Wrapf(err, "notify %s", step.Assignee)
	}

	log.Info().
		Str("issue", issue.ID).
		Int("level", step.Level).
		Str("assignee", step.Assignee).
		Bool("notified", created).
		Msg("issue escalated")
	return nil
}

func (e *Engine) step(level int) (config.EscalationStep, bool) {
	for _, s := range e.steps {
		if s.Level == level {
			return s, true
		}
	}
	return config.EscalationStep{}, false
}
