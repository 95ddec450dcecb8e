package eav

import (
	"context"

	"alma/internal/core/apperror"
)

// Registry is the single source of truth for which entities may carry
// dynamic attributes. Registration happens through the setup workflow;
// no update or delete operations are exposed outside it.
type Registry struct {
	repo EntityTypeRepository
}

// NewRegistry creates a Registry over the given repository.
func NewRegistry(repo EntityTypeRepository) *Registry {
	return &Registry{repo: repo}
}

// RegisterOrGetOptions carries the optional declaration fields.
type RegisterOrGetOptions struct {
	TableName              string
	Description            string
	UseEntitySpecificTable bool
}

// RegisterOrGet looks up the entity type by name and creates it when absent.
// Concurrent calls converge on one row: the insert relies on the partial
// unique index on name (WHERE deleted_at IS NULL); a lost race falls back
// to re-reading the winner's row instead of failing.
func (r *Registry) RegisterOrGet(ctx context.Context, name string, opts RegisterOrGetOptions) (*EntityType, error) {
	existing, err := r.repo.FindByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, err
	}

	et := NewEntityType(name, opts.TableName)
	et.UseEntitySpecificTable = opts.UseEntitySpecificTable
	if opts.Description != "" {
		desc := opts.Description
		et.Description = &desc
	}
	if err := et.Validate(ctx); err != nil {
		return nil, err
	}

	created, err := r.repo.Insert(ctx, et)
	if err != nil {
		return nil, err
	}
	if created {
		return et, nil
	}

	// Lost the race to a concurrent creator; the row exists now.
	return r.repo.FindByName(ctx, name)
}

// GetByName retrieves a registered, non-deleted entity type.
func (r *Registry) GetByName(ctx context.Context, name string) (*EntityType, error) {
	return r.repo.FindByName(ctx, name)
}

// List retrieves all registered entity types.
func (r *Registry) List(ctx context.Context) ([]*EntityType, error) {
	return r.repo.List(ctx)
}
