package quota

import (
	"context"
	"testing"

	"github.com/sjkd23/raidquota/pkg/domain"
)

func TestLedger_LogEvent(t *testing.T) {
	events := newFakeEventRepository()
	ledger := NewLedger(events, discardLogger())
	ctx := context.Background()

	subject := domain.RunSubject("run-1")
	dungeon := "fungal"
	event, duplicate, err := ledger.LogEvent(ctx, LogEventParams{
		GuildID:     "guild1",
		ActorUserID: "organizer",
		ActionType:  domain.ActionRunCompleted,
		SubjectID:   &subject,
		DungeonKey:  &dungeon,
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}
	if duplicate {
		t.Fatal("first insert reported as duplicate")
	}
	if event == nil {
		t.Fatal("LogEvent() event = nil")
	}
	if event.ID == "" {
		t.Error("event ID not assigned")
	}
	if event.Points != 0 {
		t.Errorf("Points = %d, want 0 (ledger never writes raider credit directly)", event.Points)
	}
	if event.QuotaPoints != 1 {
		t.Errorf("QuotaPoints = %d, want the action default 1", event.QuotaPoints)
	}
	if event.CreatedAt.IsZero() {
		t.Error("CreatedAt not assigned")
	}
}

func TestLedger_LogEvent_DuplicateSubject(t *testing.T) {
	events := newFakeEventRepository()
	ledger := NewLedger(events, discardLogger())
	ctx := context.Background()

	subject := domain.RunSubject("run-1")
	params := LogEventParams{
		GuildID:     "guild1",
		ActorUserID: "organizer",
		ActionType:  domain.ActionRunCompleted,
		SubjectID:   &subject,
	}

	if _, duplicate, err := ledger.LogEvent(ctx, params); err != nil || duplicate {
		t.Fatalf("first LogEvent() = (duplicate=%v, err=%v)", duplicate, err)
	}

	event, duplicate, err := ledger.LogEvent(ctx, params)
	if err != nil {
		t.Fatalf("second LogEvent() error = %v, duplicates are not errors", err)
	}
	if !duplicate {
		t.Fatal("second LogEvent() with same subject not reported as duplicate")
	}
	if event != nil {
		t.Errorf("duplicate LogEvent() event = %+v, want nil", event)
	}
	if len(events.events) != 1 {
		t.Errorf("ledger rows = %d, want 1", len(events.events))
	}
}

func TestLedger_LogEvent_NilSubjectNeverDeduplicates(t *testing.T) {
	events := newFakeEventRepository()
	ledger := NewLedger(events, discardLogger())
	ctx := context.Background()

	params := LogEventParams{
		GuildID:     "guild1",
		ActorUserID: "moderator",
		ActionType:  domain.ActionVerifyMember,
	}

	for i := 0; i < 3; i++ {
		if _, duplicate, err := ledger.LogEvent(ctx, params); err != nil || duplicate {
			t.Fatalf("LogEvent() #%d = (duplicate=%v, err=%v)", i+1, duplicate, err)
		}
	}

	if len(events.events) != 3 {
		t.Errorf("ledger rows = %d, want 3 independent verify rows", len(events.events))
	}
}

func TestLedger_LogEvent_QuotaPointsOverride(t *testing.T) {
	events := newFakeEventRepository()
	ledger := NewLedger(events, discardLogger())

	points := 3
	event, _, err := ledger.LogEvent(context.Background(), LogEventParams{
		GuildID:     "guild1",
		ActorUserID: "organizer",
		ActionType:  domain.ActionRunCompleted,
		QuotaPoints: &points,
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}
	if event.QuotaPoints != 3 {
		t.Errorf("QuotaPoints = %d, want 3", event.QuotaPoints)
	}
}

func TestLedger_LogEvent_Validation(t *testing.T) {
	ledger := NewLedger(newFakeEventRepository(), discardLogger())
	ctx := context.Background()

	tests := []struct {
		name   string
		params LogEventParams
	}{
		{
			name: "missing guild",
			params: LogEventParams{
				ActorUserID: "organizer",
				ActionType:  domain.ActionRunCompleted,
			},
		},
		{
			name: "missing actor",
			params: LogEventParams{
				GuildID:    "guild1",
				ActionType: domain.ActionRunCompleted,
			},
		},
		{
			name: "unknown action type",
			params: LogEventParams{
				GuildID:     "guild1",
				ActorUserID: "organizer",
				ActionType:  domain.ActionType("delete_run"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ledger.LogEvent(ctx, tt.params); err == nil {
				t.Error("LogEvent() error = nil, want validation error")
			}
		})
	}
}

func TestLedger_IsAlreadyLogged(t *testing.T) {
	events := newFakeEventRepository()
	ledger := NewLedger(events, discardLogger())
	ctx := context.Background()

	logged, err := ledger.IsAlreadyLogged(ctx, "guild1", "run-1")
	if err != nil {
		t.Fatalf("IsAlreadyLogged() error = %v", err)
	}
	if logged {
		t.Fatal("run reported as logged before any insert")
	}

	subject := domain.RunSubject("run-1")
	if _, _, err := ledger.LogEvent(ctx, LogEventParams{
		GuildID:     "guild1",
		ActorUserID: "organizer",
		ActionType:  domain.ActionRunCompleted,
		SubjectID:   &subject,
	}); err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	logged, err = ledger.IsAlreadyLogged(ctx, "guild1", "run-1")
	if err != nil {
		t.Fatalf("IsAlreadyLogged() error = %v", err)
	}
	if !logged {
		t.Error("run not reported as logged after insert")
	}

	// Scoped per guild.
	logged, err = ledger.IsAlreadyLogged(ctx, "guild2", "run-1")
	if err != nil {
		t.Fatalf("IsAlreadyLogged() error = %v", err)
	}
	if logged {
		t.Error("run reported as logged in a different guild")
	}
}
