package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/rota/internal/model"
)

func TestFamilyCreateRejectsUnknownTimezone(t *testing.T) {
	s := NewFamilyStore(setupTestDB(t))

	_, err := s.Create(context.Background(), "Smiths", "Mars/Olympus")
	if !errors.Is(err, ErrInvalidEntity) {
		t.Fatalf("error = %v, want ErrInvalidEntity", err)
	}
}

func TestFamilyCreateDefaultsToUTC(t *testing.T) {
	s := NewFamilyStore(setupTestDB(t))

	f, err := s.Create(context.Background(), "Smiths", "")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	if f.Timezone != "UTC" {
		t.Errorf("timezone = %q, want UTC", f.Timezone)
	}

	families, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("list families: %v", err)
	}
	if len(families) != 1 || families[0].ID != f.ID {
		t.Errorf("families = %v, want [%d]", families, f.ID)
	}
}

func TestMembersListedInSortOrder(t *testing.T) {
	f := setupFixture(t, "UTC")
	ctx := context.Background()

	members, err := f.members.ListMembers(ctx, f.family.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
	if members[0].Name != "Alice" || members[1].Name != "Bob" {
		t.Errorf("order = %s, %s", members[0].Name, members[1].Name)
	}
	if members[0].Class != model.ClassTeen {
		t.Errorf("class = %q, want teen", members[0].Class)
	}
}

func TestGetMemberNotFound(t *testing.T) {
	f := setupFixture(t, "UTC")

	m, err := f.members.GetMember(context.Background(), 999)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if m != nil {
		t.Error("expected nil for nonexistent member")
	}
}

func TestMemberCreateRejectsUnknownClass(t *testing.T) {
	f := setupFixture(t, "UTC")

	_, err := f.members.Create(context.Background(), f.family.ID, "Rex", model.PersonClass("dog"), "", "")
	if !errors.Is(err, ErrInvalidEntity) {
		t.Fatalf("error = %v, want ErrInvalidEntity", err)
	}
}

func TestUpdateClass(t *testing.T) {
	f := setupFixture(t, "UTC")

	m, err := f.members.UpdateClass(context.Background(), f.bob.ID, model.ClassHelper)
	if err != nil {
		t.Fatalf("update class: %v", err)
	}
	if m.Class != model.ClassHelper {
		t.Errorf("class = %q, want helper", m.Class)
	}
}
