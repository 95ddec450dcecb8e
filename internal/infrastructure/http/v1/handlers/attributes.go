package handlers

import (
	"github.com/gin-gonic/gin"

	"alma/internal/core/entity"
	"alma/internal/domain/eav"
	"alma/internal/infrastructure/http/v1/dto"
	"alma/internal/infrastructure/storage/postgres"
)

// AttributesHandler exposes the EAV engine: reading, writing, and deleting
// dynamic attributes of entity instances, plus the catalog views admin
// forms build from.
type AttributesHandler struct {
	BaseHandler
	service *eav.Service
	audit   *postgres.AuditService
}

// NewAttributesHandler creates the handler. audit may be nil; the history
// endpoint then returns an empty list.
func NewAttributesHandler(service *eav.Service, audit *postgres.AuditService) *AttributesHandler {
	return &AttributesHandler{service: service, audit: audit}
}

// ListEntityTypes returns the registered entity types.
// GET /entity-types
func (h *AttributesHandler) ListEntityTypes(c *gin.Context) {
	types, err := h.service.ListEntityTypes(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, types)
}

// ListDefinitions returns the active attribute definitions of one entity
// type.
// GET /entity-types/:type/attributes
func (h *AttributesHandler) ListDefinitions(c *gin.Context) {
	defs, err := h.service.ListAvailableAttributes(c.Request.Context(), c.Param("type"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, defs)
}

// GetAttributes returns the flat attribute map of one entity instance.
// GET /entities/:type/:id/attributes
func (h *AttributesHandler) GetAttributes(c *gin.Context) {
	entityType, entityID := c.Param("type"), c.Param("id")

	attrs, err := h.service.GetAttributesFor(c.Request.Context(), entityType, entityID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.AttributesResponse{
		EntityType: entityType,
		EntityID:   entityID,
		Attributes: attrs,
	})
}

// GetAttributeDetails returns values joined with definition metadata.
// GET /entities/:type/:id/attributes/details
func (h *AttributesHandler) GetAttributeDetails(c *gin.Context) {
	details, err := h.service.GetAttributesWithDetails(c.Request.Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, details)
}

// SetAttribute writes one attribute value.
// PUT /entities/:type/:id/attributes/:name
func (h *AttributesHandler) SetAttribute(c *gin.Context) {
	var req dto.SetAttributeRequest
	if !h.BindJSON(c, &req) {
		return
	}

	name := c.Param("name")
	written, err := h.service.SetAttribute(c.Request.Context(), c.Param("type"), c.Param("id"), name, req.Value)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.SetAttributeResponse{Attribute: name, Value: written})
}

// BulkSetAttributes writes a batch of attributes with per-key outcomes.
// POST /entities/:type/:id/attributes
func (h *AttributesHandler) BulkSetAttributes(c *gin.Context) {
	var req dto.BulkSetRequest
	if !h.BindJSON(c, &req) {
		return
	}

	results, err := h.service.BulkSetAttributes(c.Request.Context(), c.Param("type"), c.Param("id"), req.Values)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.BulkSetResponse{Results: results})
}

// DeleteAttribute soft-deletes one attribute's stored value.
// DELETE /entities/:type/:id/attributes/:name
func (h *AttributesHandler) DeleteAttribute(c *gin.Context) {
	deleted, err := h.service.DeleteAttribute(c.Request.Context(), c.Param("type"), c.Param("id"), c.Param("name"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.DeleteAttributeResponse{Deleted: deleted})
}

// GetAuditHistory returns recent attribute changes of one entity, newest
// first. ?attribute= narrows to one attribute, ?limit= caps the page.
// GET /entities/:type/:id/audit
func (h *AttributesHandler) GetAuditHistory(c *gin.Context) {
	if h.audit == nil {
		h.OK(c, []postgres.AuditEntry{})
		return
	}

	ref, err := entity.NewRef(c.Param("type"), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}

	limit := h.ParseIntQuery(c, "limit", 50)
	entries, err := h.audit.History(c.Request.Context(), ref, c.Query("attribute"), limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, entries)
}
