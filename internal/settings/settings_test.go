package settings_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/intake/internal/apperr"
	"github.com/dukerupert/intake/internal/audit"
	"github.com/dukerupert/intake/internal/database"
	"github.com/dukerupert/intake/internal/employee"
	"github.com/dukerupert/intake/internal/policy"
	"github.com/dukerupert/intake/internal/settings"
	"github.com/dukerupert/intake/internal/store"
)

func newService(t *testing.T) (*settings.Service, *sql.DB, int64) {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.NewSettingsStore(db).SeedDefaults(ctx, policy.DefaultSettings()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLog := audit.NewLogger(logger)
	t.Cleanup(auditLog.Wait)

	_, err = employee.NewService(db, auditLog, bcrypt.MinCost, logger).EnsureAdmin(ctx, "admin", "correct horse")
	require.NoError(t, err)
	admin, err := store.NewEmployeeStore(db).GetByUsername(ctx, "admin")
	require.NoError(t, err)
	return settings.NewService(db, auditLog, logger), db, admin.ID
}

func TestUpdateAuditsChangedKeys(t *testing.T) {
	svc, db, admin := newService(t)
	ctx := context.Background()

	all, err := svc.Update(ctx, admin, map[string]string{
		policy.KeyVoucherPrefix:  " FB- ",
		policy.KeyMinDaysBetween: "7",
		policy.KeyTimezone:       policy.DefaultTimezone,
	})
	require.NoError(t, err)
	assert.Equal(t, "FB-", all[policy.KeyVoucherPrefix])
	assert.Equal(t, "7", all[policy.KeyMinDaysBetween])

	actions, err := store.NewAuditStore(db).ListByEmployee(ctx, admin)
	require.NoError(t, err)
	var details []string
	for _, a := range actions {
		if a.ActionType == string(audit.ActionSettingsUpdate) {
			assert.Equal(t, audit.TargetSettings, a.TargetType)
			assert.Nil(t, a.TargetID)
			details = append(details, a.Details)
		}
	}
	assert.ElementsMatch(t, []string{
		"Setting 'min_days_between_visits' changed from '14' to '7'",
		"Setting 'voucher_prefix' changed from 'VCH-' to 'FB-'",
	}, details)
}

func TestUpdateRejectsWholeBatch(t *testing.T) {
	svc, db, admin := newService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, admin, map[string]string{
		policy.KeyVoucherPrefix:  "FB-",
		policy.KeyVisitsPerMonth: "lots",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsClientError(err))

	_, err = svc.Update(ctx, admin, map[string]string{
		policy.KeyVoucherPrefix: "FB-",
		"no_such_setting":       "1",
	})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "no_such_setting", ve.Field)

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, policy.DefaultVoucherPrefix, all[policy.KeyVoucherPrefix])

	actions, err := store.NewAuditStore(db).ListByEmployee(ctx, admin)
	require.NoError(t, err)
	for _, a := range actions {
		assert.NotEqual(t, string(audit.ActionSettingsUpdate), a.ActionType)
	}
}

func TestValidateAllowedIPs(t *testing.T) {
	assert.NoError(t, settings.Validate(nil, map[string]string{"allowed_ips": "10.0.0.0/8, 192.0.2.7"}))
	assert.Error(t, settings.Validate(nil, map[string]string{"allowed_ips": "10.0.0.0/8, not-an-ip"}))
}
