package eav

import (
	"context"
	"sort"

	"alma/internal/core/apperror"
	"alma/internal/core/entity"
	"alma/internal/core/id"
	"alma/internal/core/tx"
	"alma/pkg/logger"
)

// Service is the façade consumed by domain controllers — the only interface
// they should use. It resolves entity type names, joins values to the
// catalog, and wraps compound writes in transactions.
type Service struct {
	registry  *Registry
	catalog   *Catalog
	store     *Store
	resolver  entity.Resolver
	audit     AuditLogger
	txManager tx.Manager
}

// ServiceConfig wires the façade's collaborators. Resolver and Audit are
// optional; a nil resolver skips write-time existence checks and a nil
// audit logger disables change auditing.
type ServiceConfig struct {
	Registry  *Registry
	Catalog   *Catalog
	Store     *Store
	Resolver  entity.Resolver
	Audit     AuditLogger
	TxManager tx.Manager
}

// NewService creates the EAV façade.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		registry:  cfg.Registry,
		catalog:   cfg.Catalog,
		store:     cfg.Store,
		resolver:  cfg.Resolver,
		audit:     cfg.Audit,
		txManager: cfg.TxManager,
	}
}

// AttributeDetail pairs a stored (or defaulted) value with its definition
// metadata, for admin and detail UIs.
type AttributeDetail struct {
	Name          string    `json:"name"`
	DisplayName   string    `json:"displayName"`
	Description   *string   `json:"description,omitempty"`
	ValueType     ValueType `json:"valueType"`
	IsMultiValued bool      `json:"isMultiValued"`
	Value         any       `json:"value"`
	IsDefault     bool      `json:"isDefault"`
}

// SetResult reports the outcome of one key in a bulk set.
type SetResult struct {
	Status  string `json:"status"` // "ok" or "error"
	Code    string `json:"code,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message,omitempty"`
}

// GetAttributesFor returns a flat mapping of attribute machine name to
// native value for one entity instance. Multi-valued attributes become
// slices ordered by sort order; attributes with no stored row fall back to
// their declared default; attributes with neither are absent from the map.
func (s *Service) GetAttributesFor(ctx context.Context, entityType, entityID string) (map[string]any, error) {
	_, ref, defs, grouped, err := s.loadEntityValues(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}

	result := make(map[string]any, len(defs))
	for _, def := range defs {
		value, has, err := s.resolveValue(def, grouped[def.ID])
		if err != nil {
			return nil, err
		}
		if has {
			result[def.Name] = value
		}
	}

	logger.Debug(ctx, "eav attributes read",
		"entity", ref.String(),
		"attributes", len(result),
	)
	return result, nil
}

// GetAttributesWithDetails is GetAttributesFor with full definition
// metadata alongside each value. Inactive (soft-deleted) definitions are
// excluded. Attributes without a value or default are still listed with a
// nil value so admin forms can render the full shape.
func (s *Service) GetAttributesWithDetails(ctx context.Context, entityType, entityID string) ([]AttributeDetail, error) {
	_, _, defs, grouped, err := s.loadEntityValues(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}

	details := make([]AttributeDetail, 0, len(defs))
	for _, def := range defs {
		value, has, err := s.resolveValue(def, grouped[def.ID])
		if err != nil {
			return nil, err
		}

		isDefault := false
		if has && len(grouped[def.ID]) == 0 {
			isDefault = true
		}

		details = append(details, AttributeDetail{
			Name:          def.Name,
			DisplayName:   def.DisplayName,
			Description:   def.Description,
			ValueType:     def.ValueType,
			IsMultiValued: def.IsMultiValued,
			Value:         value,
			IsDefault:     isDefault,
		})
	}
	return details, nil
}

// SetAttribute writes one attribute value. For multi-valued attributes a
// slice value replaces the full ordered set; a scalar appends. The write
// runs in a transaction and is audited.
func (s *Service) SetAttribute(ctx context.Context, entityType, entityID, attributeName string, value any) (any, error) {
	et, ref, def, err := s.resolveWrite(ctx, entityType, entityID, attributeName)
	if err != nil {
		return nil, err
	}

	oldValue := s.snapshotValue(ctx, et, ref, def)

	var written any
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if def.IsMultiValued {
			if list, ok := asSlice(value); ok {
				rows, err := s.store.ReplaceAll(ctx, et, ref, def, list)
				if err != nil {
					return err
				}
				written, err = s.rowsToNative(rows, def)
				return err
			}
		}
		row, err := s.store.Write(ctx, et, ref, def, value)
		if err != nil {
			return err
		}
		written, err = s.store.Read(row, def)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, ref, def.Name, AuditActionSet, oldValue, written)
	return written, nil
}

// BulkSetAttributes writes several attributes in one call, key by key.
// Keys are independent: one bad key does not abort valid sibling writes.
// The result map carries a per-key status; the error return is reserved
// for failures before any key is processed (unknown entity type, bad ref).
func (s *Service) BulkSetAttributes(ctx context.Context, entityType, entityID string, values map[string]any) (map[string]SetResult, error) {
	ref, err := entity.NewRef(entityType, entityID)
	if err != nil {
		return nil, err
	}
	et, err := s.registry.GetByName(ctx, ref.Type)
	if err != nil {
		return nil, err
	}
	if err := s.checkEntityExists(ctx, et, ref); err != nil {
		return nil, err
	}

	// Deterministic processing order regardless of map iteration.
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]SetResult, len(names))
	for _, name := range names {
		if _, err := s.SetAttribute(ctx, entityType, entityID, name, values[name]); err != nil {
			results[name] = toSetResult(err)
			continue
		}
		results[name] = SetResult{Status: "ok"}
	}
	return results, nil
}

// DeleteAttribute soft-deletes the stored value row(s) of one attribute
// and reports whether any row existed. The definition (and any default)
// stays in place; reads fall back to the default afterwards.
func (s *Service) DeleteAttribute(ctx context.Context, entityType, entityID, attributeName string) (bool, error) {
	et, ref, def, err := s.resolveWrite(ctx, entityType, entityID, attributeName)
	if err != nil {
		return false, err
	}

	oldValue := s.snapshotValue(ctx, et, ref, def)

	var existed bool
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		existed, err = s.store.Delete(ctx, et, ref, def)
		return err
	})
	if err != nil {
		return false, err
	}

	if existed {
		s.logAudit(ctx, ref, def.Name, AuditActionDelete, oldValue, nil)
	}
	return existed, nil
}

// ListEntityTypes returns every registered entity type.
func (s *Service) ListEntityTypes(ctx context.Context) ([]*EntityType, error) {
	return s.registry.List(ctx)
}

// ListAvailableAttributes returns the active attribute definitions of an
// entity type, for building admin forms.
func (s *Service) ListAvailableAttributes(ctx context.Context, entityType string) ([]*AttributeDefinition, error) {
	et, err := s.registry.GetByName(ctx, entityType)
	if err != nil {
		return nil, err
	}
	return s.catalog.ListAttributes(ctx, et.ID, true)
}

// --- internals ---

func (s *Service) loadEntityValues(ctx context.Context, entityType, entityID string) (*EntityType, entity.Ref, []*AttributeDefinition, map[id.ID][]*AttributeValue, error) {
	ref, err := entity.NewRef(entityType, entityID)
	if err != nil {
		return nil, entity.Ref{}, nil, nil, err
	}

	et, err := s.registry.GetByName(ctx, ref.Type)
	if err != nil {
		return nil, entity.Ref{}, nil, nil, err
	}

	defs, err := s.catalog.ListAttributes(ctx, et.ID, true)
	if err != nil {
		return nil, entity.Ref{}, nil, nil, err
	}

	rows, err := s.store.ListForEntity(ctx, et, ref)
	if err != nil {
		return nil, entity.Ref{}, nil, nil, err
	}

	grouped := make(map[id.ID][]*AttributeValue, len(rows))
	for _, row := range rows {
		grouped[row.AttributeID] = append(grouped[row.AttributeID], row)
	}
	for _, group := range grouped {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].SortOrder < group[j].SortOrder
		})
	}

	return et, ref, defs, grouped, nil
}

// resolveValue turns the stored rows of one definition into a native value
// (or slice), falling back to the declared default when nothing is stored.
func (s *Service) resolveValue(def *AttributeDefinition, rows []*AttributeValue) (any, bool, error) {
	if len(rows) == 0 {
		if v, ok := def.DefaultNative(); ok {
			return v, true, nil
		}
		return nil, false, nil
	}

	if def.IsMultiValued {
		values, err := s.rowsToNative(rows, def)
		if err != nil {
			return nil, false, err
		}
		return values, true, nil
	}

	v, err := s.store.Read(rows[0], def)
	if err != nil {
		return nil, false, err
	}
	return v, v != nil, nil
}

func (s *Service) rowsToNative(rows []*AttributeValue, def *AttributeDefinition) ([]any, error) {
	values := make([]any, 0, len(rows))
	for _, row := range rows {
		v, err := s.store.Read(row, def)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// resolveWrite resolves the ref, entity type, and definition for a write,
// and verifies the referenced domain row exists (the polymorphic table has
// no foreign key to enforce it).
func (s *Service) resolveWrite(ctx context.Context, entityType, entityID, attributeName string) (*EntityType, entity.Ref, *AttributeDefinition, error) {
	ref, err := entity.NewRef(entityType, entityID)
	if err != nil {
		return nil, entity.Ref{}, nil, err
	}

	et, err := s.registry.GetByName(ctx, ref.Type)
	if err != nil {
		return nil, entity.Ref{}, nil, err
	}

	if err := s.checkEntityExists(ctx, et, ref); err != nil {
		return nil, entity.Ref{}, nil, err
	}

	def, err := s.catalog.GetByName(ctx, et.ID, attributeName)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, entity.Ref{}, nil, apperror.NewNotFound("attribute", attributeName).
				WithDetail("entityType", entityType)
		}
		return nil, entity.Ref{}, nil, err
	}

	return et, ref, def, nil
}

func (s *Service) checkEntityExists(ctx context.Context, et *EntityType, ref entity.Ref) error {
	if s.resolver == nil || et.TableName == "" {
		return nil
	}
	exists, err := s.resolver.Exists(ctx, et.TableName, ref)
	if err != nil {
		return err
	}
	if !exists {
		return apperror.NewNotFound(et.Name, ref.ID)
	}
	return nil
}

// snapshotValue reads the current value for auditing, best-effort.
func (s *Service) snapshotValue(ctx context.Context, et *EntityType, ref entity.Ref, def *AttributeDefinition) any {
	rows, err := s.store.ListForAttribute(ctx, et, ref, def.ID)
	if err != nil || len(rows) == 0 {
		return nil
	}
	if def.IsMultiValued {
		values, err := s.rowsToNative(rows, def)
		if err != nil {
			return nil
		}
		return values
	}
	v, err := s.store.Read(rows[0], def)
	if err != nil {
		return nil
	}
	return v
}

// logAudit records a change without ever failing the business operation.
func (s *Service) logAudit(ctx context.Context, ref entity.Ref, attribute string, action AuditAction, oldValue, newValue any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogChange(ctx, ref, attribute, action, oldValue, newValue); err != nil {
		logger.Warn(ctx, "eav audit log failed",
			"entity", ref.String(),
			"attribute", attribute,
			"error", err,
		)
	}
}

func toSetResult(err error) SetResult {
	res := SetResult{Status: "error", Message: err.Error()}
	if appErr, ok := apperror.AsAppError(err); ok {
		res.Code = appErr.Code
		res.Message = appErr.Message
		if rule, ok := appErr.Details["rule"].(string); ok {
			res.Rule = rule
		}
	}
	return res
}

func asSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}
