package eav

import (
	"context"
	"errors"

	"alma/internal/core/apperror"
	"alma/internal/core/id"
	"alma/internal/core/tx"
	"alma/pkg/logger"
)

// AttributeGroup is a labelled batch of attribute declarations inside an
// entity type spec. The category is reporting-only; it does not persist.
type AttributeGroup struct {
	Category string
	Specs    []AttributeSpec
}

// EntityTypeSpec declares one entity type and its attribute catalog for the
// setup workflow.
type EntityTypeSpec struct {
	Name                   string
	TableName              string
	Description            string
	UseEntitySpecificTable bool

	// EAVFlagColumn names the denormalized hint column on the domain table
	// toggled by setup and rollback. Empty disables flag management.
	EAVFlagColumn string

	Groups []AttributeGroup
}

// SetupOptions tunes a setup or rollback run.
type SetupOptions struct {
	// DryRun executes the full workflow inside a transaction and rolls it
	// back, so the report reflects what a real run would do.
	DryRun bool

	// Verbose logs every attribute decision instead of group summaries.
	Verbose bool
}

// CategoryReport counts one attribute group's outcome.
type CategoryReport struct {
	Category string `json:"category"`
	Created  int    `json:"created"`
	Existing int    `json:"existing"`
}

// SetupReport summarizes one entity type's setup run.
type SetupReport struct {
	EntityType        string           `json:"entityType"`
	EntityTypeCreated bool             `json:"entityTypeCreated"`
	Categories        []CategoryReport `json:"categories"`
	DryRun            bool             `json:"dryRun"`
}

// RollbackReport summarizes one entity type's rollback run.
type RollbackReport struct {
	EntityType         string `json:"entityType"`
	ValuesSoftDeleted  int64  `json:"valuesSoftDeleted"`
	DefinitionsRetired int64  `json:"definitionsRetired"`
	FlagReset          bool   `json:"flagReset"`
	AlreadyRolledBack  bool   `json:"alreadyRolledBack"`
	DryRun             bool   `json:"dryRun"`
}

// Migrator drives the setup and rollback workflows over the layered
// engine. Both directions are idempotent and run each entity type in its
// own transaction.
type Migrator struct {
	registry  *Registry
	catalog   *Catalog
	store     *Store
	flags     FlagStore
	txManager tx.Manager
}

// NewMigrator creates a Migrator. flags may be nil when no domain table
// carries a hint column.
func NewMigrator(registry *Registry, catalog *Catalog, store *Store, flags FlagStore, txManager tx.Manager) *Migrator {
	return &Migrator{
		registry:  registry,
		catalog:   catalog,
		store:     store,
		flags:     flags,
		txManager: txManager,
	}
}

// errDryRun aborts the surrounding transaction after the workflow ran, so a
// dry run observes real constraint behavior without persisting anything.
var errDryRun = errors.New("dry run rollback")

// RunSetup registers the entity type and defines its attribute catalog,
// idempotently: re-running against an already-populated database reports
// everything as existing and creates nothing. Each entity type runs in one
// transaction, so a failed spec leaves no partial catalog behind.
func (m *Migrator) RunSetup(ctx context.Context, spec EntityTypeSpec, opts SetupOptions) (*SetupReport, error) {
	report := &SetupReport{EntityType: spec.Name, DryRun: opts.DryRun}

	err := m.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := m.setupEntityType(ctx, spec, opts, report); err != nil {
			return err
		}
		if opts.DryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return nil, err
	}

	logger.Info(ctx, "eav setup finished",
		"entityType", spec.Name,
		"created", report.EntityTypeCreated,
		"dryRun", opts.DryRun,
	)
	return report, nil
}

func (m *Migrator) setupEntityType(ctx context.Context, spec EntityTypeSpec, opts SetupOptions, report *SetupReport) error {
	_, findErr := m.registry.GetByName(ctx, spec.Name)
	if findErr != nil && !apperror.IsNotFound(findErr) {
		return findErr
	}

	et, err := m.registry.RegisterOrGet(ctx, spec.Name, RegisterOrGetOptions{
		TableName:              spec.TableName,
		Description:            spec.Description,
		UseEntitySpecificTable: spec.UseEntitySpecificTable,
	})
	if err != nil {
		return err
	}
	report.EntityTypeCreated = apperror.IsNotFound(findErr)

	// Sort order follows declaration order across all groups.
	sortOrder := 0
	for _, group := range spec.Groups {
		cat := CategoryReport{Category: group.Category}
		for _, attrSpec := range group.Specs {
			if attrSpec.SortOrder == 0 {
				attrSpec.SortOrder = sortOrder
			}
			sortOrder++

			_, created, err := m.catalog.Define(ctx, et.ID, attrSpec)
			if err != nil {
				return err
			}
			if created {
				cat.Created++
			} else {
				cat.Existing++
			}
			if opts.Verbose {
				logger.Info(ctx, "eav attribute defined",
					"entityType", spec.Name,
					"category", group.Category,
					"attribute", attrSpec.Name,
					"created", created,
				)
			}
		}
		report.Categories = append(report.Categories, cat)
	}

	if spec.EAVFlagColumn != "" && m.flags != nil {
		if err := m.flags.SetEAVEnabled(ctx, spec.TableName, spec.EAVFlagColumn, true); err != nil {
			return err
		}
	}
	return nil
}

// RunRollback reverses a setup run without destroying data: value rows and
// definitions are soft-deleted (preserved for audit), the entity type stays
// registered, and the domain table's hint column is reset. Re-running setup
// afterwards re-creates fresh definitions; soft-deleted history is never
// resurrected. Rolling back an already-rolled-back type is a no-op.
func (m *Migrator) RunRollback(ctx context.Context, spec EntityTypeSpec, opts SetupOptions) (*RollbackReport, error) {
	report := &RollbackReport{EntityType: spec.Name, DryRun: opts.DryRun}

	err := m.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := m.rollbackEntityType(ctx, spec, report); err != nil {
			return err
		}
		if opts.DryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return nil, err
	}

	logger.Info(ctx, "eav rollback finished",
		"entityType", spec.Name,
		"valuesSoftDeleted", report.ValuesSoftDeleted,
		"definitionsRetired", report.DefinitionsRetired,
		"dryRun", opts.DryRun,
	)
	return report, nil
}

func (m *Migrator) rollbackEntityType(ctx context.Context, spec EntityTypeSpec, report *RollbackReport) error {
	et, err := m.registry.GetByName(ctx, spec.Name)
	if err != nil {
		// Never set up (or registry row removed): nothing to roll back.
		report.AlreadyRolledBack = true
		return nil
	}

	defs, err := m.catalog.ListAttributes(ctx, et.ID, true)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		report.AlreadyRolledBack = true
	}

	// Values first, then definitions: the value pass needs the still-active
	// attribute ids to scope entity-specific tables.
	attributeIDs := make([]id.ID, 0, len(defs))
	for _, def := range defs {
		attributeIDs = append(attributeIDs, def.ID)
	}
	if len(attributeIDs) > 0 {
		deleted, err := m.store.DeleteForEntityType(ctx, et, attributeIDs)
		if err != nil {
			return err
		}
		report.ValuesSoftDeleted = deleted
	}

	retired, err := m.catalog.RetireAll(ctx, et.ID)
	if err != nil {
		return err
	}
	report.DefinitionsRetired = retired

	if spec.EAVFlagColumn != "" && m.flags != nil {
		if err := m.flags.SetEAVEnabled(ctx, spec.TableName, spec.EAVFlagColumn, false); err != nil {
			return err
		}
		report.FlagReset = true
	}
	return nil
}
