package domain

import "time"

// ActionType identifies the kind of point-earning action recorded in the
// event ledger.
type ActionType string

const (
	// ActionRunCompleted records credit for a completed run, either for the
	// organizer (quota points) or for a raider who was present (written by
	// the award engine).
	ActionRunCompleted ActionType = "run_completed"

	// ActionVerifyMember records credit for verifying a guild member.
	ActionVerifyMember ActionType = "verify_member"
)

// IsValid returns true if the action type is a known type.
func (a ActionType) IsValid() bool {
	switch a {
	case ActionRunCompleted, ActionVerifyMember:
		return true
	default:
		return false
	}
}

// DefaultQuotaPoints returns the quota-point value credited when the caller
// does not supply an override. Both defined action types default to 1.
func (a ActionType) DefaultQuotaPoints() int {
	return 1
}

// Default point values used when no guild-wide configuration row exists.
const (
	DefaultRaiderPoints = 1
	DefaultKeyPopPoints = 5
)

// QuotaEvent is a single row in the append-only event ledger. Rows are
// immutable once written; corrections are made by inserting new rows with
// new subject IDs, never by updating existing ones.
//
// Points credit a raider's completion total; QuotaPoints credit an
// organizer/verifier's role-quota total. The two are independent
// accounting channels.
type QuotaEvent struct {
	ID          string     `json:"id"`
	GuildID     string     `json:"guild_id"`
	ActorUserID string     `json:"actor_user_id"`
	ActionType  ActionType `json:"action_type"`
	SubjectID   *string    `json:"subject_id,omitempty"`
	DungeonKey  *string    `json:"dungeon_key,omitempty"`
	Points      int        `json:"points"`
	QuotaPoints int        `json:"quota_points"`
	CreatedAt   time.Time  `json:"created_at"`
}

// QuotaRoleConfig holds the quota settings for one guild role. CreatedAt
// anchors the current tracking cycle and must survive updates that do not
// explicitly move it (enforced by the role-config service, not by SQL).
type QuotaRoleConfig struct {
	GuildID            string    `json:"guild_id"`
	RoleID             string    `json:"role_id"`
	RequiredPoints     int       `json:"required_points"`
	ResetAt            time.Time `json:"reset_at"`
	CreatedAt          time.Time `json:"created_at"`
	BaseExaltPoints    int       `json:"base_exalt_points"`
	BaseNonExaltPoints int       `json:"base_non_exalt_points"`
	VerifyPoints       int       `json:"verify_points"`
	WarnPoints         int       `json:"warn_points"`
	SuspendPoints      int       `json:"suspend_points"`
	ModmailReplyPoints int       `json:"modmail_reply_points"`
	EditNamePoints     int       `json:"edit_name_points"`
	AddNotePoints      int       `json:"add_note_points"`
	PanelMessageID     string    `json:"panel_message_id"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// RoleConfigUpdate is a partial update for a QuotaRoleConfig. Nil fields
// keep the existing value (or the zero value on first create). CreatedAt
// is only applied when explicitly set; leaving it nil preserves the
// current tracking cycle anchor.
type RoleConfigUpdate struct {
	RequiredPoints     *int       `json:"required_points,omitempty"`
	ResetAt            *time.Time `json:"reset_at,omitempty"`
	CreatedAt          *time.Time `json:"created_at,omitempty"`
	BaseExaltPoints    *int       `json:"base_exalt_points,omitempty"`
	BaseNonExaltPoints *int       `json:"base_non_exalt_points,omitempty"`
	VerifyPoints       *int       `json:"verify_points,omitempty"`
	WarnPoints         *int       `json:"warn_points,omitempty"`
	SuspendPoints      *int       `json:"suspend_points,omitempty"`
	ModmailReplyPoints *int       `json:"modmail_reply_points,omitempty"`
	EditNamePoints     *int       `json:"edit_name_points,omitempty"`
	AddNotePoints      *int       `json:"add_note_points,omitempty"`
	PanelMessageID     *string    `json:"panel_message_id,omitempty"`
}

// DungeonOverride is a dungeon-specific point value for one guild role.
// It takes precedence over the role's base point values. Absence means
// "no override".
type DungeonOverride struct {
	GuildID    string `json:"guild_id"`
	RoleID     string `json:"role_id"`
	DungeonKey string `json:"dungeon_key"`
	Points     int    `json:"points"`
}

// Dungeon is one entry in the dungeon catalog. The Exaltation flag selects
// which base point value applies when no override exists.
type Dungeon struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	Exaltation bool   `json:"exaltation"`
}

// KeyPopSnapshot records that a user was present when a checkpoint ("key
// pop") occurred for a run. Rows are created unawarded and flipped to
// awarded exactly once by the award engine; they are never deleted.
type KeyPopSnapshot struct {
	RunID             string     `json:"run_id"`
	KeyPop            int        `json:"key_pop"`
	UserID            string     `json:"user_id"`
	Class             string     `json:"class"`
	AwardedCompletion bool       `json:"awarded_completion"`
	AwardedAt         *time.Time `json:"awarded_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// RosterMember is one currently-joined participant of a run, as supplied
// by the run-lifecycle collaborator at snapshot time. Class is cosmetic.
type RosterMember struct {
	UserID string `json:"user_id"`
	Class  string `json:"class"`
}

// LeaderboardCategory selects which reduction over the ledger (or the
// key-pop counter store) a leaderboard query performs.
type LeaderboardCategory string

const (
	// CategoryRunsOrganized counts run_completed rows per actor with
	// quota_points > 0, expanding batch-correction rows to their embedded
	// run count.
	CategoryRunsOrganized LeaderboardCategory = "runs_organized"

	// CategoryDungeonCompletions counts run_completed rows per actor with
	// points > 0, with the same batch-count expansion.
	CategoryDungeonCompletions LeaderboardCategory = "dungeon_completions"

	// CategoryPoints sums positive raider points per actor.
	CategoryPoints LeaderboardCategory = "points"

	// CategoryQuotaPoints sums positive quota points per actor.
	CategoryQuotaPoints LeaderboardCategory = "quota_points"

	// CategoryKeysPopped sums the key-pop counter store per user. The
	// counter store carries no timestamps, so date-range filters do not
	// apply to this category.
	CategoryKeysPopped LeaderboardCategory = "keys_popped"
)

// IsValid returns true if the category is a known leaderboard category.
func (c LeaderboardCategory) IsValid() bool {
	switch c {
	case CategoryRunsOrganized, CategoryDungeonCompletions, CategoryPoints,
		CategoryQuotaPoints, CategoryKeysPopped:
		return true
	default:
		return false
	}
}

// LeaderboardEntry is one ranked row: a user and their aggregated value.
type LeaderboardEntry struct {
	UserID string `json:"user_id"`
	Value  int64  `json:"value"`
}
