package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/intake/internal/database"
	"github.com/dukerupert/intake/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestCustomer(t *testing.T, db DBTX, name, phone string, members ...string) *model.Customer {
	t.Helper()
	var hm []model.HouseholdMember
	for _, m := range members {
		hm = append(hm, model.HouseholdMember{Name: m, Relationship: "member"})
	}
	c, err := NewCustomerStore(db).Create(context.Background(), model.CustomerInput{Name: name, Phone: phone}, hm)
	if err != nil {
		t.Fatalf("create customer %q: %v", name, err)
	}
	return c
}

func TestPlaceholders(t *testing.T) {
	cases := map[int]string{0: "", 1: "?", 3: "?, ?, ?"}
	for n, want := range cases {
		if got := placeholders(n); got != want {
			t.Errorf("placeholders(%d) = %q, want %q", n, got, want)
		}
	}
}
