package quota

import (
	"context"
	"log/slog"

	"github.com/sjkd23/raidquota/pkg/domain"
	"github.com/sjkd23/raidquota/pkg/repository"
)

// AwardEngine converts key-pop presence snapshots into ledger entries
// when a checkpoint closes. A raider is awarded at most once per
// checkpoint (the subject ID embeds the checkpoint number), and a raider
// who joined after a checkpoint's snapshot is never retroactively
// credited for it.
type AwardEngine struct {
	ledger    *Ledger
	resolver  *Resolver
	snapshots repository.SnapshotRepository
	keyPops   repository.KeyPopRepository
	logger    *slog.Logger
}

// NewAwardEngine creates an award engine.
func NewAwardEngine(ledger *Ledger, resolver *Resolver, snapshots repository.SnapshotRepository, keyPops repository.KeyPopRepository, logger *slog.Logger) *AwardEngine {
	return &AwardEngine{
		ledger:    ledger,
		resolver:  resolver,
		snapshots: snapshots,
		keyPops:   keyPops,
		logger:    logger,
	}
}

// AwardResult is the per-raider outcome of one award pass. Exactly one of
// Event, Duplicate or Err describes what happened; callers and tests can
// assert on partial-failure outcomes directly.
type AwardResult struct {
	UserID    string
	Event     *domain.QuotaEvent
	Duplicate bool
	Err       error
}

// wholeRunKeyPop is the snapshot slot used by the whole-run award variant
// for activities without checkpoints.
const wholeRunKeyPop = 0

// Snapshot records the roster present when checkpoint keyPop occurs for a
// run. Re-snapshotting the same checkpoint is idempotent; raiders already
// recorded keep their original row. There is no limit on the number of
// checkpoints per run.
func (e *AwardEngine) Snapshot(ctx context.Context, runID string, keyPop int, roster []domain.RosterMember) error {
	if err := e.snapshots.InsertSnapshots(ctx, runID, keyPop, roster); err != nil {
		return err
	}

	e.logger.Info("checkpoint snapshot taken",
		"run_id", runID,
		"key_pop", keyPop,
		"raiders", len(roster),
	)

	return nil
}

// CloseCheckpoint awards completion credit for checkpoint keyPop of a
// run, called when the next checkpoint occurs or the run ends. Raider
// points are resolved through the role point policy with the all-roles
// scope (the original actor's live role membership is unavailable at
// closure). A resolved value of 0 short-circuits: no ledger writes, all
// snapshot rows stay unawarded.
//
// Each raider is awarded independently: a storage failure for one raider
// is recorded in its result and does not abort the rest of the batch. A
// partially-awarded checkpoint is safely retryable because every write is
// idempotent.
func (e *AwardEngine) CloseCheckpoint(ctx context.Context, guildID, runID string, keyPop int, dungeonKey string) ([]AwardResult, error) {
	return e.award(ctx, guildID, runID, keyPop, dungeonKey, func(userID string) string {
		return domain.RaiderSubject(runID, keyPop, userID)
	})
}

// AwardOnCompletion is the whole-run variant for activities without
// checkpoints: the roster currently joined is snapshotted and awarded
// once, with no checkpoint number in the subject ID. Structurally the
// same algorithm with the checkpoint count fixed at 1.
func (e *AwardEngine) AwardOnCompletion(ctx context.Context, guildID, runID, dungeonKey string, roster []domain.RosterMember) ([]AwardResult, error) {
	if err := e.snapshots.InsertSnapshots(ctx, runID, wholeRunKeyPop, roster); err != nil {
		return nil, err
	}

	return e.award(ctx, guildID, runID, wholeRunKeyPop, dungeonKey, func(userID string) string {
		return domain.RunCompletionSubject(runID, userID)
	})
}

func (e *AwardEngine) award(ctx context.Context, guildID, runID string, keyPop int, dungeonKey string, subjectFor func(userID string) string) ([]AwardResult, error) {
	points, err := e.resolver.ResolvePoints(ctx, guildID, dungeonKey, nil)
	if err != nil {
		return nil, err
	}
	if points == 0 {
		e.logger.Info("zero-point dungeon, skipping award",
			"run_id", runID,
			"key_pop", keyPop,
			"dungeon_key", dungeonKey,
		)
		return nil, nil
	}

	pending, err := e.snapshots.ListUnawarded(ctx, runID, keyPop)
	if err != nil {
		return nil, err
	}

	results := make([]AwardResult, 0, len(pending))
	for _, snapshot := range pending {
		subject := subjectFor(snapshot.UserID)
		event, duplicate, err := e.ledger.LogEvent(ctx, LogEventParams{
			GuildID:     guildID,
			ActorUserID: snapshot.UserID,
			ActionType:  domain.ActionRunCompleted,
			SubjectID:   &subject,
			DungeonKey:  &dungeonKey,
			QuotaPoints: &points,
		})
		if err != nil {
			e.logger.Error("failed to award raider",
				"run_id", runID,
				"key_pop", keyPop,
				"user_id", snapshot.UserID,
				"error", err,
			)
			results = append(results, AwardResult{UserID: snapshot.UserID, Err: err})
			continue
		}

		if !duplicate {
			if err := e.snapshots.MarkAwarded(ctx, runID, keyPop, snapshot.UserID); err != nil {
				e.logger.Error("failed to mark snapshot awarded",
					"run_id", runID,
					"key_pop", keyPop,
					"user_id", snapshot.UserID,
					"error", err,
				)
				results = append(results, AwardResult{UserID: snapshot.UserID, Event: event, Err: err})
				continue
			}
		}

		results = append(results, AwardResult{UserID: snapshot.UserID, Event: event, Duplicate: duplicate})
	}

	e.logger.Info("checkpoint awarded",
		"run_id", runID,
		"key_pop", keyPop,
		"raiders", len(results),
		"points", points,
	)

	return results, nil
}

// RecordKeyPop increments the key-pop counter store for the user and
// returns the configured key-pop point value for the dungeon. The counter
// store is independent of the ledger and is never date-filtered.
func (e *AwardEngine) RecordKeyPop(ctx context.Context, guildID, userID, dungeonKey string) (int, error) {
	if err := e.keyPops.Increment(ctx, guildID, userID, dungeonKey); err != nil {
		return 0, err
	}

	return e.resolver.KeyPopPoints(ctx, guildID, dungeonKey)
}
