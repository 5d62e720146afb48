package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sjkd23/raidquota/pkg/domain"
	"github.com/sjkd23/raidquota/pkg/errors"
	"github.com/sjkd23/raidquota/pkg/repository"
)

// Ledger is the write-side service for the event ledger. It owns the
// logEvent contract: quota points are computed from the supplied override
// or the action-type default, raider points are always written as zero
// (the award engine is the only path that carries raider credit today),
// and duplicate detection is delegated to the storage layer's conditional
// insert.
type Ledger struct {
	events repository.EventRepository
	logger *slog.Logger
}

// NewLedger creates a ledger service.
func NewLedger(events repository.EventRepository, logger *slog.Logger) *Ledger {
	return &Ledger{
		events: events,
		logger: logger,
	}
}

// LogEventParams are the inputs to LogEvent. SubjectID, DungeonKey and
// QuotaPoints are optional; a nil QuotaPoints means "use the action-type
// default".
type LogEventParams struct {
	GuildID     string
	ActorUserID string
	ActionType  domain.ActionType
	SubjectID   *string
	DungeonKey  *string
	QuotaPoints *int
}

// LogEvent appends one event to the ledger. Returns the stored event, or
// (nil, true, nil) when the conditional insert found an existing
// run_completed row with the same (guild, subject_id). Duplicate is an
// expected outcome of idempotent insertion, not an error; retrying the
// same call is always a no-op on the second attempt.
func (l *Ledger) LogEvent(ctx context.Context, p LogEventParams) (*domain.QuotaEvent, bool, error) {
	if p.GuildID == "" {
		return nil, false, errors.ErrValidationFailed("guild_id", "cannot be empty")
	}
	if p.ActorUserID == "" {
		return nil, false, errors.ErrValidationFailed("actor_user_id", "cannot be empty")
	}
	if !p.ActionType.IsValid() {
		return nil, false, errors.ErrValidationFailed("action_type", "unknown action type '"+string(p.ActionType)+"'")
	}

	quotaPoints := p.ActionType.DefaultQuotaPoints()
	if p.QuotaPoints != nil {
		quotaPoints = *p.QuotaPoints
	}

	event := &domain.QuotaEvent{
		ID:          uuid.NewString(),
		GuildID:     p.GuildID,
		ActorUserID: p.ActorUserID,
		ActionType:  p.ActionType,
		SubjectID:   p.SubjectID,
		DungeonKey:  p.DungeonKey,
		Points:      0,
		QuotaPoints: quotaPoints,
		CreatedAt:   time.Now().UTC(),
	}

	inserted, err := l.events.Insert(ctx, event)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		l.logger.Debug("duplicate event ignored",
			"guild_id", p.GuildID,
			"subject_id", derefString(p.SubjectID),
		)
		return nil, true, nil
	}

	return event, false, nil
}

// IsAlreadyLogged reports whether organizer credit for the run has
// already been written. This is a UX short-circuit for manual-correction
// entry points; the ledger's own conditional insert stays authoritative
// either way.
func (l *Ledger) IsAlreadyLogged(ctx context.Context, guildID, runID string) (bool, error) {
	return l.events.Exists(ctx, guildID, domain.RunSubject(runID))
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
