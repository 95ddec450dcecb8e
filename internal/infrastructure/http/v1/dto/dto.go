// Package dto holds request and response shapes of the v1 HTTP API.
package dto

import "alma/internal/domain/eav"

// SetAttributeRequest carries a single attribute write.
type SetAttributeRequest struct {
	Value any `json:"value" binding:"required"`
}

// BulkSetRequest carries a key->value batch write.
type BulkSetRequest struct {
	Values map[string]any `json:"values" binding:"required"`
}

// SetAttributeResponse returns the canonical value as stored.
type SetAttributeResponse struct {
	Attribute string `json:"attribute"`
	Value     any    `json:"value"`
}

// BulkSetResponse returns the per-key outcome of a batch write.
type BulkSetResponse struct {
	Results map[string]eav.SetResult `json:"results"`
}

// DeleteAttributeResponse reports whether a stored value existed.
type DeleteAttributeResponse struct {
	Deleted bool `json:"deleted"`
}

// AttributesResponse is the flat name->value mapping of one entity.
type AttributesResponse struct {
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Attributes map[string]any `json:"attributes"`
}

// SuccessResponse is a generic success envelope.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
