// Package importer loads effective-owner CSV exports into the store.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"delegated-groups/internal/db/repository"
	"delegated-groups/internal/domain"
	"delegated-groups/internal/service"
)

// Source type values in the export format.
const (
	sourceUserOwner  = "USER_OWNER"
	sourceGroupOwner = "GROUP_OWNER"
)

// Importer replays an effective-owners CSV export: persons and groups are
// upserted, USER_OWNER rows become direct grants, GROUP_OWNER rows become
// derived grants plus a backfilled owning-group rule so the next sync run
// keeps them reconciled.
type Importer struct {
	identity *service.IdentityService
	registry *service.RegistryService
	owners   *repository.OwnerRepo
	logger   *slog.Logger
}

func New(identity *service.IdentityService, registry *service.RegistryService, owners *repository.OwnerRepo, logger *slog.Logger) *Importer {
	return &Importer{identity: identity, registry: registry, owners: owners, logger: logger}
}

// Summary reports what one import did.
type Summary struct {
	Rows          int `json:"rows"`
	SkippedRows   int `json:"skipped_rows"`
	DirectGrants  int `json:"direct_grants"`
	DerivedGrants int `json:"derived_grants"`
	Rules         int `json:"rules"`
}

// expected CSV columns, matched by header name.
var requiredColumns = []string{"app", "group_name", "user_name", "source_type"}

// Run reads the CSV from r and applies every row. Malformed rows are logged
// and skipped; the import continues.
func (im *Importer) Run(ctx context.Context, r io.Reader) (*Summary, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range requiredColumns {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv is missing required column %q", required)
		}
	}
	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	summary := &Summary{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			im.logger.Warn("skipping malformed csv row", "line", line, "error", err)
			summary.SkippedRows++
			continue
		}
		summary.Rows++
		if err := im.applyRow(ctx, record, field, summary); err != nil {
			im.logger.Warn("skipping csv row", "line", line, "error", err)
			summary.SkippedRows++
		}
	}
	im.logger.Info("import complete",
		"rows", summary.Rows,
		"skipped", summary.SkippedRows,
		"direct_grants", summary.DirectGrants,
		"derived_grants", summary.DerivedGrants,
		"rules", summary.Rules,
	)
	return summary, nil
}

func (im *Importer) applyRow(ctx context.Context, record []string, field func([]string, string) string, summary *Summary) error {
	system, err := domain.ParseSystem(field(record, "app"))
	if err != nil {
		return err
	}
	groupName := field(record, "group_name")
	username := field(record, "user_name")
	email := field(record, "email_address")
	sourceType := field(record, "source_type")
	viaGroup := field(record, "via_group_name")

	group, err := im.registry.ResolveOrCreateGroup(ctx, system, groupName)
	if err != nil {
		return err
	}
	person, err := im.identity.ResolveOrCreatePerson(ctx, username, email)
	if err != nil {
		return err
	}

	switch sourceType {
	case sourceUserOwner:
		created, err := im.owners.AddDirectGrant(ctx, group.ID, person.ID)
		if err != nil {
			return err
		}
		if created {
			summary.DirectGrants++
		}
	case sourceGroupOwner:
		if viaGroup == "" {
			return fmt.Errorf("GROUP_OWNER row without via_group_name")
		}
		created, err := im.owners.AddDerivedGrant(ctx, group.ID, person.ID, viaGroup)
		if err != nil {
			return err
		}
		if created {
			summary.DerivedGrants++
		}
		// Backfill the rule that would have produced this grant.
		ruleCreated, err := im.owners.AddRule(ctx, domain.NewOwningGroupRule(group.ID, viaGroup))
		if err != nil {
			return err
		}
		if ruleCreated {
			summary.Rules++
		}
	default:
		return fmt.Errorf("unknown source_type %q", sourceType)
	}
	return nil
}
