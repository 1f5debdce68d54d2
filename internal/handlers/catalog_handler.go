package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"catalog-service/internal/models"
	"catalog-service/internal/repository"
)

type CatalogHandler struct {
	repo repository.CatalogRepository
}

func NewCatalogHandler(repo repository.CatalogRepository) *CatalogHandler {
	return &CatalogHandler{repo: repo}
}

// GetCategories lists the catalog's categories
// GET /api/v1/catalogs/:catalogId/categories
func (h *CatalogHandler) GetCategories(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	catalogID := c.Param("catalogId")

	categories, err := h.repo.ListCategories(tenantID.(string), catalogID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.CategoryListResponse{
		Success: true,
		Data:    categories,
	})
}

// GetItemsByCategory lists one category's items with pagination
// GET /api/v1/catalogs/:catalogId/categories/:categoryId/items
func (h *CatalogHandler) GetItemsByCategory(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	categoryID, err := uuid.Parse(c.Param("categoryId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "INVALID_CATEGORY_ID",
				Message: "Category ID must be a valid UUID",
			},
		})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	items, total, err := h.repo.GetItemsByCategory(tenantID.(string), categoryID, page, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"pagination": models.PaginationInfo{
			Page:        page,
			Limit:       limit,
			Total:       total,
			TotalPages:  int((total + int64(limit) - 1) / int64(limit)),
			HasNext:     int64(page*limit) < total,
			HasPrevious: page > 1,
		},
	})
}

// GetItem returns one item with its modifier-group assignments
// GET /api/v1/catalogs/:catalogId/items/:itemId
func (h *CatalogHandler) GetItem(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	itemID, err := uuid.Parse(c.Param("itemId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "INVALID_ITEM_ID",
				Message: "Item ID must be a valid UUID",
			},
		})
		return
	}

	item, err := h.repo.GetItemByID(tenantID.(string), itemID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    item,
	})
}

// GetItemSizes lists the catalog's size definitions
// GET /api/v1/catalogs/:catalogId/sizes
func (h *CatalogHandler) GetItemSizes(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	catalogID := c.Param("catalogId")

	sizes, err := h.repo.ListItemSizes(tenantID.(string), catalogID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ItemSizeListResponse{
		Success: true,
		Data:    sizes,
	})
}

// GetModifierGroups lists the catalog's modifier groups with their modifiers
// GET /api/v1/catalogs/:catalogId/modifier-groups
func (h *CatalogHandler) GetModifierGroups(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	catalogID := c.Param("catalogId")

	groups, err := h.repo.ListModifierGroups(tenantID.(string), catalogID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	modifiers, err := h.repo.ListModifiers(tenantID.(string), catalogID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	byGroup := make(map[uuid.UUID][]models.Modifier)
	for _, m := range modifiers {
		byGroup[m.GroupID] = append(byGroup[m.GroupID], m)
	}

	data := make([]models.ModifierGroupWithModifiers, 0, len(groups))
	for _, g := range groups {
		data = append(data, models.ModifierGroupWithModifiers{
			ModifierGroup: g,
			Modifiers:     byGroup[g.ID],
		})
	}

	c.JSON(http.StatusOK, models.ModifierGroupListResponse{
		Success: true,
		Data:    data,
	})
}

// exportColumns is the column order of the combined typed-row export. The
// type column comes first so re-uploading an export never relies on the
// heuristic classifier.
var exportColumns = []string{
	"type", "name", "category", "description", "base_price", "is_sizeable",
	"default_size", "size_code", "item", "group_key", "modifier_key", "price",
	"display_type", "min_select", "max_select", "prices_by_size",
	"max_quantity", "is_default", "display_order", "sort_order", "active",
}

// ExportCatalog downloads the whole catalog in the typed-row format the
// importer accepts, so an export can be re-imported as-is
// GET /api/v1/catalogs/:catalogId/export?format=csv|xlsx
func (h *CatalogHandler) ExportCatalog(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	catalogID := c.Param("catalogId")

	rows, err := h.buildExportRows(tenantID.(string), catalogID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	switch c.DefaultQuery("format", "csv") {
	case "xlsx":
		h.writeExportXLSX(c, catalogID, rows)
	default:
		h.writeExportCSV(c, catalogID, rows)
	}
}

func (h *CatalogHandler) buildExportRows(tenantID, catalogID string) ([]map[string]string, error) {
	categories, err := h.repo.ListCategories(tenantID, catalogID)
	if err != nil {
		return nil, err
	}
	sizes, err := h.repo.ListItemSizes(tenantID, catalogID)
	if err != nil {
		return nil, err
	}
	groups, err := h.repo.ListModifierGroups(tenantID, catalogID)
	if err != nil {
		return nil, err
	}
	modifiers, err := h.repo.ListModifiers(tenantID, catalogID)
	if err != nil {
		return nil, err
	}
	items, err := h.repo.ListItems(tenantID, catalogID)
	if err != nil {
		return nil, err
	}

	categoryName := make(map[uuid.UUID]string, len(categories))
	for _, cat := range categories {
		categoryName[cat.ID] = cat.Name
	}
	sizeCode := make(map[string]string, len(sizes))
	for _, s := range sizes {
		sizeCode[s.ID.String()] = s.SizeCode
	}
	groupKey := make(map[string]string, len(groups))
	for _, g := range groups {
		groupKey[g.ID.String()] = g.GroupKey
	}
	modifierKey := make(map[string]string, len(modifiers))
	modifierGroup := make(map[string]string, len(modifiers))
	for _, m := range modifiers {
		modifierKey[m.ID.String()] = m.ModifierKey
		modifierGroup[m.ID.String()] = groupKey[m.GroupID.String()]
	}

	var rows []map[string]string

	for _, cat := range categories {
		rows = append(rows, map[string]string{
			"type":        "category",
			"name":        cat.Name,
			"description": derefString(cat.Description),
			"sort_order":  strconv.Itoa(cat.SortOrder),
			"active":      formatBool(cat.IsActive),
		})
	}

	for _, s := range sizes {
		rows = append(rows, map[string]string{
			"type":       "size",
			"size_code":  s.SizeCode,
			"name":       s.Name,
			"sort_order": strconv.Itoa(s.SortOrder),
		})
	}

	for _, g := range groups {
		rows = append(rows, map[string]string{
			"type":           "modifier_group",
			"group_key":      g.GroupKey,
			"name":           g.Name,
			"description":    derefString(g.Description),
			"display_type":   g.DisplayType,
			"min_select":     strconv.Itoa(g.MinSelect),
			"max_select":     strconv.Itoa(g.MaxSelect),
			"prices_by_size": formatPricesBySize(g.PricesBySize, sizeCode),
			"sort_order":     strconv.Itoa(g.SortOrder),
		})
	}

	for _, m := range modifiers {
		rows = append(rows, map[string]string{
			"type":         "modifier",
			"group_key":    modifierGroup[m.ID.String()],
			"modifier_key": m.ModifierKey,
			"name":         m.Name,
			"price":        strconv.FormatFloat(m.Price, 'f', -1, 64),
			"max_quantity": strconv.Itoa(m.MaxQuantity),
			"is_default":   strconv.FormatBool(m.IsDefault),
			"sort_order":   strconv.Itoa(m.SortOrder),
		})
	}

	for _, item := range items {
		row := map[string]string{
			"type":        "item",
			"name":        item.Name,
			"category":    categoryName[item.CategoryID],
			"description": derefString(item.Description),
			"base_price":  strconv.FormatFloat(item.BasePrice, 'f', -1, 64),
			"is_sizeable": strconv.FormatBool(item.IsSizeable),
			"sort_order":  strconv.Itoa(item.SortOrder),
			"active":      formatBool(item.IsActive),
		}
		if item.DefaultSizeID != nil {
			row["default_size"] = sizeCode[item.DefaultSizeID.String()]
		}
		rows = append(rows, row)

		for _, assignment := range item.ModifierGroups {
			gk := groupKey[assignment.ModifierGroupID]
			for _, override := range assignment.ModifierOverrides {
				orow := map[string]string{
					"type":          "item_mod_override",
					"item":          item.Name,
					"category":      categoryName[item.CategoryID],
					"group_key":     gk,
					"modifier_key":  modifierKey[override.ModifierID],
					"display_order": strconv.Itoa(assignment.DisplayOrder),
				}
				if override.Price != nil {
					orow["price"] = strconv.FormatFloat(*override.Price, 'f', -1, 64)
				}
				if override.IsDefault != nil {
					orow["is_default"] = strconv.FormatBool(*override.IsDefault)
				}
				if override.MaxQuantity != nil {
					orow["max_quantity"] = strconv.Itoa(*override.MaxQuantity)
				}
				rows = append(rows, orow)
			}
		}
	}

	return rows, nil
}

func (h *CatalogHandler) writeExportCSV(c *gin.Context, catalogID string, rows []map[string]string) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=catalog_export_%s.csv", catalogID))

	w := csv.NewWriter(c.Writer)
	defer w.Flush()

	_ = w.Write(exportColumns)
	record := make([]string, len(exportColumns))
	for _, row := range rows {
		for i, col := range exportColumns {
			record[i] = row[col]
		}
		_ = w.Write(record)
	}
}

func (h *CatalogHandler) writeExportXLSX(c *gin.Context, catalogID string, rows []map[string]string) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Catalog"
	f.SetSheetName("Sheet1", sheet)

	for i, col := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, col)
	}
	for r, row := range rows {
		for i, col := range exportColumns {
			if row[col] == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			f.SetCellValue(sheet, cell, row[col])
		}
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=catalog_export_%s.xlsx", catalogID))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	_ = f.Write(c.Writer)
}

func (h *CatalogHandler) respondError(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "NOT_FOUND",
				Message: "Requested resource not found",
			},
		})
		return
	}
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "INTERNAL_ERROR",
			Message: "An unexpected error occurred",
		},
	})
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatBool(b *bool) string {
	if b == nil {
		return "true"
	}
	return strconv.FormatBool(*b)
}

// formatPricesBySize renders per-size prices back to the "CODE:price" pair
// syntax the importer reads, in stable code order
func formatPricesBySize(prices *models.JSON, sizeCode map[string]string) string {
	if prices == nil || len(*prices) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(*prices))
	for sizeID, value := range *prices {
		code := sizeCode[sizeID]
		if code == "" {
			continue
		}
		price, ok := value.(float64)
		if !ok {
			continue
		}
		pairs = append(pairs, fmt.Sprintf("%s:%s", code, strconv.FormatFloat(price, 'f', -1, 64)))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ";")
}
