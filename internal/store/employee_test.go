package store

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func setupEmployeeTestDB(t *testing.T) *EmployeeStore {
	t.Helper()
	return NewEmployeeStore(openTestDB(t))
}

func TestEmployeeCreate(t *testing.T) {
	es := setupEmployeeTestDB(t)

	e, err := es.Create(context.Background(), "jdoe", "Jane Doe", "jane@example.com", "hunter22", true, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}
	if e.Username != "jdoe" {
		t.Errorf("username = %q, want %q", e.Username, "jdoe")
	}
	if !e.IsAdmin {
		t.Error("expected admin")
	}
	if !e.IsActive {
		t.Error("expected active")
	}
}

func TestEmployeeCreateDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	es := setupEmployeeTestDB(t)

	if _, err := es.Create(ctx, "jdoe", "Jane", "", "pw", false, bcrypt.MinCost); err != nil {
		t.Fatalf("create employee: %v", err)
	}
	if _, err := es.Create(ctx, "jdoe", "John", "", "pw", false, bcrypt.MinCost); err == nil {
		t.Fatal("expected error for duplicate username, got nil")
	}
}

func TestEmployeeAuthenticate(t *testing.T) {
	ctx := context.Background()
	es := setupEmployeeTestDB(t)
	created, err := es.Create(ctx, "jdoe", "Jane Doe", "", "hunter22", false, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}

	e, err := es.Authenticate(ctx, "jdoe", "hunter22")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if e == nil || e.ID != created.ID {
		t.Fatalf("expected employee %d, got %+v", created.ID, e)
	}

	if e, _ := es.Authenticate(ctx, "jdoe", "wrong"); e != nil {
		t.Error("wrong password should not authenticate")
	}
	if e, _ := es.Authenticate(ctx, "nobody", "hunter22"); e != nil {
		t.Error("unknown user should not authenticate")
	}

	if ok, err := es.SetActive(ctx, created.ID, false); err != nil || !ok {
		t.Fatalf("deactivate = %v, %v", ok, err)
	}
	if e, _ := es.Authenticate(ctx, "jdoe", "hunter22"); e != nil {
		t.Error("inactive employee should not authenticate")
	}
}

func TestEmployeeResetPassword(t *testing.T) {
	ctx := context.Background()
	es := setupEmployeeTestDB(t)
	created, err := es.Create(ctx, "jdoe", "Jane Doe", "", "old-password", false, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}

	if ok, err := es.ResetPassword(ctx, created.ID, "new-password", bcrypt.MinCost); err != nil || !ok {
		t.Fatalf("reset = %v, %v", ok, err)
	}
	if e, _ := es.Authenticate(ctx, "jdoe", "old-password"); e != nil {
		t.Error("old password should no longer work")
	}
	if e, _ := es.Authenticate(ctx, "jdoe", "new-password"); e == nil {
		t.Error("new password should work")
	}

	if ok, _ := es.ResetPassword(ctx, 999, "x", bcrypt.MinCost); ok {
		t.Error("reset on missing employee should report false")
	}
}
