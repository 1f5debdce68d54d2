package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"catalog-service/internal/importer"
	"catalog-service/internal/models"
	"catalog-service/internal/services"
)

// MaxUploadSize caps a single uploaded file (or archive) at 20 MB
const MaxUploadSize = 20 << 20

type ImportHandler struct {
	service *services.ImportService
}

func NewImportHandler(service *services.ImportService) *ImportHandler {
	return &ImportHandler{service: service}
}

// CreateSession stages an uploaded file as a new import session
// POST /api/v1/catalogs/:catalogId/import/sessions
func (h *ImportHandler) CreateSession(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	userID, _ := c.Get("user_id")
	catalogID := c.Param("catalogId")

	filename, data, hint, ok := h.readUpload(c)
	if !ok {
		return
	}

	session, err := h.service.CreateSession(c.Request.Context(), tenantID.(string), catalogID, toString(userID), filename, data, hint)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.ImportSessionResponse{
		Success: true,
		Data:    session,
	})
}

// AppendFile parses another upload into an existing session
// POST /api/v1/catalogs/:catalogId/import/sessions/:sessionId/files
func (h *ImportHandler) AppendFile(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	filename, data, hint, ok := h.readUpload(c)
	if !ok {
		return
	}

	session, err := h.service.AppendFile(c.Request.Context(), tenantID.(string), sessionID, filename, data, hint)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ImportSessionResponse{
		Success: true,
		Data:    session,
	})
}

// GetSession returns one import session with its staged data and issues
// GET /api/v1/catalogs/:catalogId/import/sessions/:sessionId
func (h *ImportHandler) GetSession(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	session, err := h.service.GetSession(c.Request.Context(), tenantID.(string), sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ImportSessionResponse{
		Success: true,
		Data:    session,
	})
}

// ListSessions returns the tenant's import sessions for a catalog
// GET /api/v1/catalogs/:catalogId/import/sessions
func (h *ImportHandler) ListSessions(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	catalogID := c.Param("catalogId")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	status := models.ImportSessionStatus(c.Query("status"))

	sessions, _, err := h.service.ListSessions(c.Request.Context(), tenantID.(string), catalogID, status, page, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ImportSessionListResponse{
		Success: true,
		Data:    sessions,
	})
}

// UpdateData replaces a session's staged data with an edited copy
// PUT /api/v1/catalogs/:catalogId/import/sessions/:sessionId/data
func (h *ImportHandler) UpdateData(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req models.UpdateSessionDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "VALIDATION_ERROR",
				Message: err.Error(),
			},
		})
		return
	}

	session, err := h.service.UpdateData(c.Request.Context(), tenantID.(string), sessionID, req.ParsedData)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ImportSessionResponse{
		Success: true,
		Data:    session,
	})
}

// ConfirmSession commits a validated session into the live catalog
// POST /api/v1/catalogs/:catalogId/import/sessions/:sessionId/confirm
func (h *ImportHandler) ConfirmSession(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	session, err := h.service.Confirm(c.Request.Context(), tenantID.(string), sessionID)
	if err != nil {
		if errors.Is(err, services.ErrValidationFailed) {
			c.JSON(http.StatusUnprocessableEntity, models.ImportSessionResponse{
				Success: false,
				Data:    session,
				Message: strPtr("Session has validation errors and cannot be confirmed"),
			})
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ImportSessionResponse{
		Success: true,
		Data:    session,
	})
}

// DiscardSession abandons a staged session
// POST /api/v1/catalogs/:catalogId/import/sessions/:sessionId/discard
func (h *ImportHandler) DiscardSession(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	session, err := h.service.Discard(c.Request.Context(), tenantID.(string), sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ImportSessionResponse{
		Success: true,
		Data:    session,
	})
}

// RollbackSession undoes a confirmed import
// POST /api/v1/catalogs/:catalogId/import/sessions/:sessionId/rollback
func (h *ImportHandler) RollbackSession(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	session, err := h.service.Rollback(c.Request.Context(), tenantID.(string), sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ImportSessionResponse{
		Success: true,
		Data:    session,
	})
}

// DeleteSession removes a session record
// DELETE /api/v1/catalogs/:catalogId/import/sessions/:sessionId
func (h *ImportHandler) DeleteSession(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteSession(c.Request.Context(), tenantID.(string), sessionID); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: strPtr("Import session deleted"),
	})
}

// GetValidationReport downloads a session's validation issues as CSV
// GET /api/v1/catalogs/:catalogId/import/sessions/:sessionId/report
func (h *ImportHandler) GetValidationReport(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	report, err := h.service.ValidationReportCSV(c.Request.Context(), tenantID.(string), sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=import_validation_%s.csv", sessionID))
	c.Data(http.StatusOK, "text/csv", report)
}

// templateColumns defines the downloadable import template, one sheet per
// entity kind
var templateColumns = map[string][]string{
	"Categories":     {"type", "name", "description", "sort_order", "active"},
	"Items":          {"type", "name", "category", "description", "base_price", "is_sizeable", "default_size", "sort_order", "active"},
	"Sizes":          {"type", "size_code", "name", "item", "is_default", "sort_order"},
	"ModifierGroups": {"type", "group_key", "name", "description", "display_type", "min_select", "max_select", "prices_by_size", "sort_order"},
	"Modifiers":      {"type", "group_key", "modifier_key", "name", "price", "max_quantity", "is_default", "sort_order"},
	"ItemOverrides":  {"type", "item", "group_key", "modifier_key", "price", "is_default", "max_quantity", "display_order"},
}

var templateSheetOrder = []string{"Categories", "Items", "Sizes", "ModifierGroups", "Modifiers", "ItemOverrides"}

var templateTypeValue = map[string]string{
	"Categories":     "category",
	"Items":          "item",
	"Sizes":          "size",
	"ModifierGroups": "modifier_group",
	"Modifiers":      "modifier",
	"ItemOverrides":  "item_mod_override",
}

// GetImportTemplate downloads an XLSX workbook with one header sheet per
// entity kind
// GET /api/v1/catalogs/import/template
func (h *ImportHandler) GetImportTemplate(c *gin.Context) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})

	for i, sheet := range templateSheetOrder {
		if i == 0 {
			f.SetSheetName("Sheet1", sheet)
		} else {
			f.NewSheet(sheet)
		}
		for col, name := range templateColumns[sheet] {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			f.SetCellValue(sheet, cell, name)
			f.SetCellStyle(sheet, cell, cell, headerStyle)
			colName, _ := excelize.ColumnNumberToName(col + 1)
			f.SetColWidth(sheet, colName, colName, 18)
		}
		// Sample type cell so re-uploads classify without heuristics
		f.SetCellValue(sheet, "A2", templateTypeValue[sheet])
	}

	c.Header("Content-Disposition", "attachment; filename=catalog_import_template.xlsx")
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	_ = f.Write(c.Writer)
}

// readUpload pulls the multipart file and optional entity_type hint out of
// the request
func (h *ImportHandler) readUpload(c *gin.Context) (string, []byte, models.EntityKind, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "FILE_REQUIRED",
				Message: "Please upload a CSV, Excel or ZIP file",
			},
		})
		return "", nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "FILE_READ_ERROR",
				Message: "Failed to read uploaded file",
			},
		})
		return "", nil, "", false
	}
	if len(data) > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "FILE_TOO_LARGE",
				Message: fmt.Sprintf("Uploaded file exceeds the %d MB limit", MaxUploadSize>>20),
			},
		})
		return "", nil, "", false
	}

	var hint models.EntityKind
	raw := c.PostForm("entity_type")
	if raw == "" {
		// Older clients sent the camel-cased field name.
		raw = c.PostForm("entityType")
	}
	if raw != "" {
		kind, ok := models.ParseEntityKind(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Success: false,
				Error: models.Error{
					Code:    "INVALID_ENTITY_TYPE",
					Message: fmt.Sprintf("Unknown entity type %q", raw),
					Field:   "entity_type",
				},
			})
			return "", nil, "", false
		}
		hint = kind
	}

	return header.Filename, data, hint, true
}

func (h *ImportHandler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "INVALID_SESSION_ID",
				Message: "Session ID must be a valid UUID",
			},
		})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps service errors onto the standard error envelope
func (h *ImportHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	message := "An unexpected error occurred"

	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		status, code, message = http.StatusNotFound, "SESSION_NOT_FOUND", "Import session not found"
	case errors.Is(err, services.ErrInvalidTransition):
		status, code, message = http.StatusConflict, "INVALID_STATUS", err.Error()
	case errors.Is(err, services.ErrSessionExpired):
		status, code, message = http.StatusGone, "SESSION_EXPIRED", "Import session has expired"
	case errors.Is(err, services.ErrNothingToImport):
		status, code, message = http.StatusBadRequest, "EMPTY_FILE", "No importable rows found in the upload"
	case errors.Is(err, services.ErrSessionNotEditable):
		status, code, message = http.StatusConflict, "SESSION_CONFIRMED", "Confirmed sessions cannot be deleted"
	case errors.Is(err, importer.ErrUnresolvedReference):
		status, code, message = http.StatusConflict, "UNRESOLVED_REFERENCE", err.Error()
	case errors.Is(err, importer.ErrUnsupportedFormat):
		status, code, message = http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error()
	case errors.Is(err, importer.ErrMalformedFile):
		status, code, message = http.StatusBadRequest, "MALFORMED_FILE", err.Error()
	}

	c.JSON(status, models.ErrorResponse{
		Success:   false,
		Error:     models.Error{Code: code, Message: message},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func strPtr(s string) *string {
	return &s
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
