// Package settings applies administrator changes to the settings table. An
// update is validated as a whole, written in one transaction and audited per
// changed key.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"net/netip"
	"slices"
	"strings"

	"github.com/dukerupert/intake/internal/apperr"
	"github.com/dukerupert/intake/internal/audit"
	"github.com/dukerupert/intake/internal/middleware"
	"github.com/dukerupert/intake/internal/policy"
	"github.com/dukerupert/intake/internal/store"
)

type Service struct {
	db     *sql.DB
	audit  *audit.Logger
	logger *slog.Logger
}

func NewService(db *sql.DB, auditLog *audit.Logger, logger *slog.Logger) *Service {
	return &Service{db: db, audit: auditLog, logger: logger.With("component", "settings")}
}

func (s *Service) All(ctx context.Context) (map[string]string, error) {
	all, err := store.NewSettingsStore(s.db).GetAll(ctx)
	if err != nil {
		return nil, apperr.Persistence("get settings", err)
	}
	return all, nil
}

// Update writes every key of update or none of them. Keys whose value does
// not change are skipped and not audited.
func (s *Service) Update(ctx context.Context, actorID int64, update map[string]string) (map[string]string, error) {
	clean := make(map[string]string, len(update))
	for k, v := range update {
		clean[k] = strings.TrimSpace(v)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Persistence("update settings", err)
	}
	defer tx.Rollback()

	settings := store.NewSettingsStore(s.db).WithTx(tx)
	current, err := settings.GetAll(ctx)
	if err != nil {
		return nil, apperr.Persistence("update settings", err)
	}
	if err := Validate(current, clean); err != nil {
		return nil, err
	}

	pending := s.audit.Begin(tx)
	var changed []string
	for _, key := range slices.Sorted(maps.Keys(clean)) {
		old, ok := current[key]
		if ok && old == clean[key] {
			continue
		}
		if err := settings.Set(ctx, key, clean[key]); err != nil {
			return nil, apperr.Persistence("update settings", err)
		}
		if err := pending.Record(ctx, audit.Entry{
			ActorID:    audit.Actor(actorID),
			Action:     audit.ActionSettingsUpdate,
			TargetType: audit.TargetSettings,
			Details:    fmt.Sprintf("Setting '%s' changed from '%s' to '%s'", key, old, clean[key]),
		}); err != nil {
			return nil, apperr.Persistence("update settings", err)
		}
		changed = append(changed, key)
	}

	all, err := settings.GetAll(ctx)
	if err != nil {
		return nil, apperr.Persistence("update settings", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Persistence("update settings", err)
	}
	pending.Publish()

	if len(changed) > 0 {
		s.logger.Info("settings updated", "keys", changed, "employee_id", actorID)
	}
	return all, nil
}

// Validate checks that update only names known keys and that current merged
// with update still parses into a policy.
func Validate(current, update map[string]string) error {
	allowed := map[string]bool{middleware.KeyAllowedIPs: true, middleware.KeyAllowedDNS: true}
	for k := range policy.DefaultSettings() {
		allowed[k] = true
	}

	merged := maps.Clone(current)
	if merged == nil {
		merged = map[string]string{}
	}
	for key, value := range update {
		if !allowed[key] {
			return apperr.Invalid(key, fmt.Sprintf("unknown setting: %s", key))
		}
		merged[key] = strings.TrimSpace(value)
	}
	if _, err := policy.FromMap(merged); err != nil {
		return err
	}
	for _, entry := range strings.Split(update[middleware.KeyAllowedIPs], ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, err := netip.ParsePrefix(entry); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(entry); err != nil {
			return apperr.Invalid(middleware.KeyAllowedIPs, fmt.Sprintf("invalid address or CIDR %q", entry))
		}
	}
	return nil
}
