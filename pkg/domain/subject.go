package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Subject ID encodings. These strings are a wire format shared with the
// bot's command handlers and with historical ledger rows, so the shapes
// below must be preserved exactly:
//
//	run:<run_id>                              organizer credit, one run
//	manual_log_run:<ts>:<user_id>:<count>     organizer credit, <count> runs
//	raider:<run_id>:<checkpoint>:<user_id>    raider credit, one checkpoint
//	raider:<run_id>:<user_id>                 raider credit, whole run
const (
	subjectPrefixRun       = "run:"
	subjectPrefixManualLog = "manual_log_run:"
	subjectPrefixRaider    = "raider:"
)

// RunSubject encodes the deduplication subject for organizer credit of a
// single run.
func RunSubject(runID string) string {
	return subjectPrefixRun + runID
}

// ManualLogSubject encodes a batch correction: count runs logged for a
// user in one administrative action. The timestamp keeps repeated
// corrections for the same user distinct.
func ManualLogSubject(ts int64, userID string, count int) string {
	return fmt.Sprintf("%s%d:%s:%d", subjectPrefixManualLog, ts, userID, count)
}

// RaiderSubject encodes raider credit for one checkpoint of a run.
func RaiderSubject(runID string, keyPop int, userID string) string {
	return fmt.Sprintf("%s%s:%d:%s", subjectPrefixRaider, runID, keyPop, userID)
}

// RunCompletionSubject encodes raider credit for a whole run without
// checkpoints.
func RunCompletionSubject(runID, userID string) string {
	return fmt.Sprintf("%s%s:%s", subjectPrefixRaider, runID, userID)
}

// IsManualLogSubject reports whether the subject carries a batch run count.
func IsManualLogSubject(subjectID string) bool {
	return strings.HasPrefix(subjectID, subjectPrefixManualLog)
}

// RunCount returns the number of runs a ledger row represents. Organic
// rows contribute exactly 1; manual_log_run rows contribute their embedded
// count. A malformed manual_log_run encoding is a data-integrity bug in
// whatever wrote the row, so it is returned as an error rather than
// coerced to 1.
func RunCount(subjectID string) (int64, error) {
	if !IsManualLogSubject(subjectID) {
		return 1, nil
	}

	parts := strings.Split(strings.TrimPrefix(subjectID, subjectPrefixManualLog), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed manual_log_run subject %q: want 3 fields, got %d", subjectID, len(parts))
	}

	count, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed manual_log_run subject %q: %w", subjectID, err)
	}

	return count, nil
}
