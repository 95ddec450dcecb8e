// Package main provides eavctl, the CLI for managing the dynamic
// attribute catalog: installing the built-in setup, rolling it back, and
// pruning orphaned value rows.
//
// Usage:
//
//	eavctl setup [--dry-run] [--verbose] [--entity-type NAME]
//	eavctl setup --rollback [--dry-run] [--entity-type NAME]
//	eavctl prune [--entity-type NAME]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"alma/internal/domain/eav"
	"alma/internal/infrastructure/storage/postgres"
	"alma/internal/infrastructure/storage/postgres/eav_repo"
	"alma/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	setupCmd := flag.NewFlagSet("setup", flag.ExitOnError)
	dryRun := setupCmd.Bool("dry-run", false, "report what would change without persisting anything")
	verbose := setupCmd.Bool("verbose", false, "log every attribute decision")
	rollback := setupCmd.Bool("rollback", false, "reverse the setup instead of applying it")
	setupEntityType := setupCmd.String("entity-type", "", "limit to one entity type")

	pruneCmd := flag.NewFlagSet("prune", flag.ExitOnError)
	pruneEntityType := pruneCmd.String("entity-type", "", "limit to one entity type")

	// Default command is setup.
	args := os.Args[1:]
	command := "setup"
	if len(args) > 0 && args[0] == "prune" {
		command = "prune"
		args = args[1:]
	} else if len(args) > 0 && args[0] == "setup" {
		args = args[1:]
	}

	log, err := logger.New(logger.Config{Level: "info", Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		return 1
	}

	ctx := logger.WithLogger(context.Background(), log)

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Error("DATABASE_URL environment variable is required")
		return 1
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Errorw("failed to connect to database", "error", err)
		return 1
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	registry := eav.NewRegistry(eav_repo.NewEntityTypeRepo(txManager))
	catalog := eav.NewCatalog(eav_repo.NewDefinitionRepo(txManager))
	store := eav.NewStore(eav_repo.NewValueRepo(txManager)).
		WithSpecificTable("Assessment", eav_repo.NewAssessmentValueRepo(txManager))
	migrator := eav.NewMigrator(registry, catalog, store, eav_repo.NewFlagStore(txManager), txManager)

	switch command {
	case "prune":
		_ = pruneCmd.Parse(args)
		return prune(ctx, log, registry, eav_repo.NewValueRepo(txManager), *pruneEntityType)
	default:
		_ = setupCmd.Parse(args)
		specs := selectSpecs(*setupEntityType)
		if len(specs) == 0 {
			log.Errorw("unknown entity type", "entityType", *setupEntityType)
			return 1
		}
		if *rollback {
			return runRollback(ctx, log, migrator, specs, eav.SetupOptions{DryRun: *dryRun})
		}
		return runSetup(ctx, log, migrator, specs, eav.SetupOptions{DryRun: *dryRun, Verbose: *verbose})
	}
}

func selectSpecs(entityType string) []eav.EntityTypeSpec {
	specs := eav.DefaultSetupSpecs()
	if entityType == "" {
		return specs
	}
	for _, spec := range specs {
		if spec.Name == entityType {
			return []eav.EntityTypeSpec{spec}
		}
	}
	return nil
}

func runSetup(ctx context.Context, log *logger.Logger, migrator *eav.Migrator, specs []eav.EntityTypeSpec, opts eav.SetupOptions) int {
	for _, spec := range specs {
		report, err := migrator.RunSetup(ctx, spec, opts)
		if err != nil {
			log.Errorw("setup failed", "entityType", spec.Name, "error", err)
			return 1
		}
		printJSON(report)
	}
	return 0
}

func runRollback(ctx context.Context, log *logger.Logger, migrator *eav.Migrator, specs []eav.EntityTypeSpec, opts eav.SetupOptions) int {
	for _, spec := range specs {
		report, err := migrator.RunRollback(ctx, spec, opts)
		if err != nil {
			log.Errorw("rollback failed", "entityType", spec.Name, "error", err)
			return 1
		}
		printJSON(report)
	}
	return 0
}

// prune physically removes generic-table value rows whose owning domain
// row is gone. Only entity types on the polymorphic strategy need it;
// entity-specific tables cascade on delete.
func prune(ctx context.Context, log *logger.Logger, registry *eav.Registry, pruner eav.OrphanPruner, entityType string) int {
	types, err := registry.List(ctx)
	if err != nil {
		log.Errorw("failed to list entity types", "error", err)
		return 1
	}

	for _, et := range types {
		if entityType != "" && et.Name != entityType {
			continue
		}
		if et.UseEntitySpecificTable || et.TableName == "" {
			continue
		}

		removed, err := pruner.PruneOrphans(ctx, et.Name, et.TableName)
		if err != nil {
			log.Errorw("prune failed", "entityType", et.Name, "error", err)
			return 1
		}
		log.Infow("pruned orphan values", "entityType", et.Name, "removed", removed)
	}
	return 0
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(out))
}
