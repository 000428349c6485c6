package store

import (
	"context"
	"database/sql"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/dukerupert/rota/internal/database"
	"github.com/dukerupert/rota/internal/model"
)

type fixture struct {
	db        *sql.DB
	family    *model.Family
	alice     *model.FamilyMember
	bob       *model.FamilyMember
	families  *FamilyStore
	members   *FamilyMemberStore
	events    *EventStore
	templates *TemplateStore
	occ       *OccurrenceStore
	gens      *GenerationStore
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func setupFixture(t *testing.T, timezone string) *fixture {
	t.Helper()
	ctx := context.Background()
	db := setupTestDB(t)

	f := &fixture{
		db:        db,
		families:  NewFamilyStore(db),
		members:   NewFamilyMemberStore(db),
		events:    NewEventStore(db),
		templates: NewTemplateStore(db),
		occ:       NewOccurrenceStore(db),
		gens:      NewGenerationStore(db),
	}

	var err error
	f.family, err = f.families.Create(ctx, "Smiths", timezone)
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	f.alice, err = f.members.Create(ctx, f.family.ID, "Alice", model.ClassTeen, "#f00", "A")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	f.bob, err = f.members.Create(ctx, f.family.ID, "Bob", model.ClassChild, "#00f", "B")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	return f
}

func (f *fixture) createTemplate(t *testing.T, strategy model.RotationStrategy, rule string, dueAt time.Time) *model.TaskTemplate {
	t.Helper()
	tmpl, err := f.templates.Create(context.Background(), TemplateParams{
		FamilyID:         f.family.ID,
		Title:            "Dishes",
		Category:         "kitchen",
		RecurrenceRule:   rule,
		Strategy:         strategy,
		Pool:             []int64{f.alice.ID, f.bob.ID},
		EstimatedMinutes: 20,
		Points:           5,
		DueAt:            dueAt,
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	return tmpl
}
