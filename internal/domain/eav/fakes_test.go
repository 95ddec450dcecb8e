package eav

import (
	"context"
	"sort"
	"sync"
	"time"

	"alma/internal/core/apperror"
	"alma/internal/core/entity"
	"alma/internal/core/id"
)

// In-memory repositories mirroring the Postgres semantics: partial unique
// indexes become existence checks over non-deleted rows, insert races
// collapse to "already exists".

type memEntityTypeRepo struct {
	mu   sync.Mutex
	rows map[string]*EntityType
}

func newMemEntityTypeRepo() *memEntityTypeRepo {
	return &memEntityTypeRepo{rows: make(map[string]*EntityType)}
}

func (r *memEntityTypeRepo) Insert(ctx context.Context, et *EntityType) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rows[et.Name]; ok && existing.DeletedAt == nil {
		return false, nil
	}
	clone := *et
	r.rows[et.Name] = &clone
	return true, nil
}

func (r *memEntityTypeRepo) FindByName(ctx context.Context, name string) (*EntityType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	et, ok := r.rows[name]
	if !ok || et.DeletedAt != nil {
		return nil, apperror.NewNotFound("entityType", name)
	}
	clone := *et
	return &clone, nil
}

func (r *memEntityTypeRepo) List(ctx context.Context) ([]*EntityType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*EntityType
	for _, et := range r.rows {
		if et.DeletedAt == nil {
			clone := *et
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memEntityTypeRepo) SetActive(ctx context.Context, entityTypeID id.ID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, et := range r.rows {
		if et.ID == entityTypeID {
			et.IsActive = active
			return nil
		}
	}
	return apperror.NewNotFound("entityType", entityTypeID.String())
}

type memDefinitionRepo struct {
	mu   sync.Mutex
	rows []*AttributeDefinition
}

func (r *memDefinitionRepo) Insert(ctx context.Context, def *AttributeDefinition) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if existing.EntityTypeID == def.EntityTypeID && existing.Name == def.Name && existing.DeletedAt == nil {
			return false, nil
		}
	}
	clone := *def
	r.rows = append(r.rows, &clone)
	return true, nil
}

func (r *memDefinitionRepo) FindByName(ctx context.Context, entityTypeID id.ID, name string) (*AttributeDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range r.rows {
		if def.EntityTypeID == entityTypeID && def.Name == name && def.DeletedAt == nil {
			clone := *def
			return &clone, nil
		}
	}
	return nil, apperror.NewNotFound("attribute", name)
}

func (r *memDefinitionRepo) ListByEntityType(ctx context.Context, entityTypeID id.ID, activeOnly bool) ([]*AttributeDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*AttributeDefinition
	for _, def := range r.rows {
		if def.EntityTypeID != entityTypeID {
			continue
		}
		if activeOnly && (def.DeletedAt != nil || !def.IsActive) {
			continue
		}
		clone := *def
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *memDefinitionRepo) Retire(ctx context.Context, defID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range r.rows {
		if def.ID == defID && def.DeletedAt == nil {
			now := time.Now().UTC()
			def.DeletedAt = &now
			def.IsActive = false
			return nil
		}
	}
	return apperror.NewNotFound("attribute", defID.String())
}

func (r *memDefinitionRepo) RetireAllForEntityType(ctx context.Context, entityTypeID id.ID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for _, def := range r.rows {
		if def.EntityTypeID == entityTypeID && def.DeletedAt == nil {
			def.DeletedAt = &now
			def.IsActive = false
			n++
		}
	}
	return n, nil
}

type memValueRepo struct {
	mu   sync.Mutex
	rows []*AttributeValue
}

func (r *memValueRepo) FindCurrent(ctx context.Context, ref entity.Ref, attributeID id.ID) (*AttributeValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.rows {
		if r.matches(v, ref, attributeID) {
			clone := *v
			return &clone, nil
		}
	}
	return nil, apperror.NewNotFound("attributeValue", attributeID.String())
}

func (r *memValueRepo) ListForEntity(ctx context.Context, ref entity.Ref) ([]*AttributeValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*AttributeValue
	for _, v := range r.rows {
		if v.EntityType == ref.Type && v.EntityID == ref.ID && v.DeletedAt == nil {
			clone := *v
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (r *memValueRepo) ListForAttribute(ctx context.Context, ref entity.Ref, attributeID id.ID) ([]*AttributeValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*AttributeValue
	for _, v := range r.rows {
		if r.matches(v, ref, attributeID) {
			clone := *v
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (r *memValueRepo) Insert(ctx context.Context, v *AttributeValue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *v
	r.rows = append(r.rows, &clone)
	return nil
}

func (r *memValueRepo) UpdateTyped(ctx context.Context, v *AttributeValue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.rows {
		if existing.ID == v.ID {
			clone := *v
			r.rows[i] = &clone
			return nil
		}
	}
	return apperror.NewNotFound("attributeValue", v.ID.String())
}

func (r *memValueRepo) NextSortOrder(ctx context.Context, ref entity.Ref, attributeID id.ID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := 0
	for _, v := range r.rows {
		if r.matches(v, ref, attributeID) && v.SortOrder >= next {
			next = v.SortOrder + 1
		}
	}
	return next, nil
}

func (r *memValueRepo) SoftDeleteForAttribute(ctx context.Context, ref entity.Ref, attributeID id.ID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for _, v := range r.rows {
		if r.matches(v, ref, attributeID) {
			v.DeletedAt = &now
			n++
		}
	}
	return n, nil
}

func (r *memValueRepo) SoftDeleteForEntityType(ctx context.Context, entityTypeName string, attributeIDs []id.ID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make(map[id.ID]struct{}, len(attributeIDs))
	for _, attrID := range attributeIDs {
		ids[attrID] = struct{}{}
	}
	var n int64
	now := time.Now().UTC()
	for _, v := range r.rows {
		if v.DeletedAt != nil {
			continue
		}
		_, byAttr := ids[v.AttributeID]
		if v.EntityType == entityTypeName || byAttr {
			v.DeletedAt = &now
			n++
		}
	}
	return n, nil
}

func (r *memValueRepo) matches(v *AttributeValue, ref entity.Ref, attributeID id.ID) bool {
	return v.EntityType == ref.Type && v.EntityID == ref.ID &&
		v.AttributeID == attributeID && v.DeletedAt == nil
}

// passthroughTx satisfies tx.Manager without a database.
type passthroughTx struct{}

func (passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type stubResolver struct {
	missing map[string]bool // ref.String() -> true when absent
}

func (r *stubResolver) Exists(ctx context.Context, tableName string, ref entity.Ref) (bool, error) {
	if r.missing[ref.String()] {
		return false, nil
	}
	return true, nil
}

type memFlagStore struct {
	mu    sync.Mutex
	flags map[string]bool // table.column -> enabled
}

func newMemFlagStore() *memFlagStore {
	return &memFlagStore{flags: make(map[string]bool)}
}

func (f *memFlagStore) SetEAVEnabled(ctx context.Context, tableName, flagColumn string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[tableName+"."+flagColumn] = enabled
	return nil
}

type auditEntry struct {
	Ref       entity.Ref
	Attribute string
	Action    AuditAction
	OldValue  any
	NewValue  any
}

type memAuditLogger struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *memAuditLogger) LogChange(ctx context.Context, ref entity.Ref, attribute string, action AuditAction, oldValue, newValue any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{ref, attribute, action, oldValue, newValue})
	return nil
}

// testEngine bundles a fully wired in-memory engine for service and
// migration tests.
type testEngine struct {
	registry *Registry
	catalog  *Catalog
	store    *Store
	service  *Service
	migrator *Migrator

	entityTypes *memEntityTypeRepo
	defs        *memDefinitionRepo
	values      *memValueRepo
	specific    *memValueRepo
	flags       *memFlagStore
	resolver    *stubResolver
	audit       *memAuditLogger
}

func newTestEngine() *testEngine {
	e := &testEngine{
		entityTypes: newMemEntityTypeRepo(),
		defs:        &memDefinitionRepo{},
		values:      &memValueRepo{},
		specific:    &memValueRepo{},
		flags:       newMemFlagStore(),
		resolver:    &stubResolver{missing: make(map[string]bool)},
		audit:       &memAuditLogger{},
	}
	e.registry = NewRegistry(e.entityTypes)
	e.catalog = NewCatalog(e.defs)
	e.store = NewStore(e.values).WithSpecificTable("Assessment", e.specific)
	e.service = NewService(ServiceConfig{
		Registry:  e.registry,
		Catalog:   e.catalog,
		Store:     e.store,
		Resolver:  e.resolver,
		Audit:     e.audit,
		TxManager: passthroughTx{},
	})
	e.migrator = NewMigrator(e.registry, e.catalog, e.store, e.flags, passthroughTx{})
	return e
}
