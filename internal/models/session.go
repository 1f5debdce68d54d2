package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ImportSessionStatus represents the lifecycle state of an import session
type ImportSessionStatus string

const (
	ImportStatusDraft      ImportSessionStatus = "DRAFT"
	ImportStatusValidated  ImportSessionStatus = "VALIDATED"
	ImportStatusConfirmed  ImportSessionStatus = "CONFIRMED"
	ImportStatusDiscarded  ImportSessionStatus = "DISCARDED"
	ImportStatusRolledBack ImportSessionStatus = "ROLLED_BACK"
)

// IsTerminal reports whether no further transitions are allowed from s.
// CONFIRMED is not terminal because a confirmed session may still be rolled
// back.
func (s ImportSessionStatus) IsTerminal() bool {
	return s == ImportStatusDiscarded || s == ImportStatusRolledBack
}

// EntityKind identifies one of the six parsed record kinds
type EntityKind string

const (
	KindCategory             EntityKind = "CATEGORY"
	KindItem                 EntityKind = "ITEM"
	KindItemSize             EntityKind = "SIZE"
	KindModifierGroup        EntityKind = "MOD_GROUP"
	KindModifier             EntityKind = "MODIFIER"
	KindItemModifierOverride EntityKind = "ITEM_MOD_OVERRIDE"
)

// ParseEntityKind maps an entity type hint string to an EntityKind.
// Accepts the wire constants plus common lowercase aliases.
func ParseEntityKind(s string) (EntityKind, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CATEGORY", "CATEGORIES":
		return KindCategory, true
	case "ITEM", "ITEMS":
		return KindItem, true
	case "SIZE", "SIZES", "ITEM_SIZE", "ITEM_SIZES":
		return KindItemSize, true
	case "MOD_GROUP", "MOD_GROUPS", "MODIFIER_GROUP", "MODIFIER_GROUPS":
		return KindModifierGroup, true
	case "MODIFIER", "MODIFIERS":
		return KindModifier, true
	case "ITEM_MOD_OVERRIDE", "ITEM_MOD_OVERRIDES", "ITEM_MODIFIER_OVERRIDE", "ITEM_MODIFIER_OVERRIDES", "OVERRIDE", "OVERRIDES":
		return KindItemModifierOverride, true
	}
	return "", false
}

// RowSource records where a parsed record came from, for issue reporting.
// Row is 1-based and matches the CSV's own line numbering (header is row 1).
type RowSource struct {
	SourceFile string `json:"sourceFile,omitempty"`
	Row        int    `json:"row,omitempty"`
}

// ParsedCategory is a category row as read from the upload, pre-validation
type ParsedCategory struct {
	RowSource
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SortOrder   int    `json:"sortOrder,omitempty"`
	IsActive    bool   `json:"isActive"`
}

// ParsedItem is an item row as read from the upload
type ParsedItem struct {
	RowSource
	Name            string  `json:"name"`
	CategoryName    string  `json:"categoryName,omitempty"`
	CategoryID      string  `json:"categoryId,omitempty"`
	Description     string  `json:"description,omitempty"`
	BasePrice       float64 `json:"basePrice,omitempty"`
	BasePriceRaw    string  `json:"basePriceRaw,omitempty"`
	IsSizeable      bool    `json:"isSizeable,omitempty"`
	DefaultSizeCode string  `json:"defaultSizeCode,omitempty"`
	SortOrder       int     `json:"sortOrder,omitempty"`
	IsActive        bool    `json:"isActive"`
}

// ParsedItemSize is a size row; ItemName blank means the size is global
type ParsedItemSize struct {
	RowSource
	SizeCode         string `json:"sizeCode"`
	Name             string `json:"name,omitempty"`
	ItemName         string `json:"itemName,omitempty"`
	ItemCategoryName string `json:"itemCategoryName,omitempty"`
	IsDefault        bool   `json:"isDefault,omitempty"`
	SortOrder        int    `json:"sortOrder,omitempty"`
}

// ParsedModifierGroup is a modifier-group row as read from the upload
type ParsedModifierGroup struct {
	RowSource
	GroupKey     string             `json:"groupKey,omitempty"`
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	DisplayType  string             `json:"displayType,omitempty"`
	MinSelect    int                `json:"minSelect,omitempty"`
	MaxSelect    int                `json:"maxSelect,omitempty"`
	SortOrder    int                `json:"sortOrder,omitempty"`
	PricesBySize map[string]float64 `json:"pricesBySize,omitempty"`
}

// Key returns the group's natural key: group_key, falling back to name
func (g ParsedModifierGroup) Key() string {
	if g.GroupKey != "" {
		return g.GroupKey
	}
	return g.Name
}

// ParsedModifier is a modifier row as read from the upload
type ParsedModifier struct {
	RowSource
	GroupKey    string  `json:"groupKey"`
	ModifierKey string  `json:"modifierKey,omitempty"`
	Name        string  `json:"name"`
	Price       float64 `json:"price,omitempty"`
	PriceRaw    string  `json:"priceRaw,omitempty"`
	MaxQuantity int     `json:"maxQuantity,omitempty"`
	IsDefault   bool    `json:"isDefault,omitempty"`
	SortOrder   int     `json:"sortOrder,omitempty"`
}

// Key returns the modifier's natural key: modifier_key, falling back to name
func (m ParsedModifier) Key() string {
	if m.ModifierKey != "" {
		return m.ModifierKey
	}
	return m.Name
}

// ParsedItemModifierOverride customizes one modifier of one group for one item
type ParsedItemModifierOverride struct {
	RowSource
	ItemName         string   `json:"itemName"`
	ItemCategoryName string   `json:"itemCategoryName,omitempty"`
	GroupKey         string   `json:"groupKey"`
	ModifierKey      string   `json:"modifierKey"`
	Price            *float64 `json:"price,omitempty"`
	IsDefault        *bool    `json:"isDefault,omitempty"`
	MaxQuantity      *int     `json:"maxQuantity,omitempty"`
	DisplayOrder     int      `json:"displayOrder,omitempty"`
}

// ParsedImportData is the staged bundle of all parsed records. The six lists
// are independent until validation/commit resolves cross-references by
// natural key.
type ParsedImportData struct {
	Categories            []ParsedCategory             `json:"categories"`
	Items                 []ParsedItem                 `json:"items"`
	ItemSizes             []ParsedItemSize             `json:"itemSizes"`
	ModifierGroups        []ParsedModifierGroup        `json:"modifierGroups"`
	Modifiers             []ParsedModifier             `json:"modifiers"`
	ItemModifierOverrides []ParsedItemModifierOverride `json:"itemModifierOverrides"`
}

// Merge appends every list of other onto d (used when a session receives
// additional files)
func (d *ParsedImportData) Merge(other *ParsedImportData) {
	if other == nil {
		return
	}
	d.Categories = append(d.Categories, other.Categories...)
	d.Items = append(d.Items, other.Items...)
	d.ItemSizes = append(d.ItemSizes, other.ItemSizes...)
	d.ModifierGroups = append(d.ModifierGroups, other.ModifierGroups...)
	d.Modifiers = append(d.Modifiers, other.Modifiers...)
	d.ItemModifierOverrides = append(d.ItemModifierOverrides, other.ItemModifierOverrides...)
}

// IsEmpty reports whether no records were parsed at all
func (d *ParsedImportData) IsEmpty() bool {
	return len(d.Categories) == 0 && len(d.Items) == 0 && len(d.ItemSizes) == 0 &&
		len(d.ModifierGroups) == 0 && len(d.Modifiers) == 0 && len(d.ItemModifierOverrides) == 0
}

func (d ParsedImportData) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *ParsedImportData) Scan(value interface{}) error {
	if value == nil {
		*d = ParsedImportData{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, d)
}

// ValidationIssue is one validation error or warning with enough context to
// render in a review UI
type ValidationIssue struct {
	File       string     `json:"file,omitempty"`
	Row        int        `json:"row,omitempty"`
	EntityType EntityKind `json:"entityType"`
	Field      string     `json:"field"`
	Message    string     `json:"message"`
	Value      string     `json:"value,omitempty"`
}

// ValidationIssueList is stored as a JSONB document on the session
type ValidationIssueList []ValidationIssue

func (l ValidationIssueList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *ValidationIssueList) Scan(value interface{}) error {
	if value == nil {
		*l = make(ValidationIssueList, 0)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// RollbackAction distinguishes how a rollback operation is reversed
type RollbackAction string

const (
	RollbackActionCreate RollbackAction = "create"
	RollbackActionUpdate RollbackAction = "update"
)

// RollbackOperation records one reversible entity mutation made by a commit.
// For create, reversal is delete-by-id; for update, reversal restores
// PreviousData. Only the first mutation of a given (EntityType, ID) pair in
// a commit carries the snapshot.
type RollbackOperation struct {
	EntityType   string          `json:"entityType"`
	Action       RollbackAction  `json:"action"`
	ID           string          `json:"id"`
	PreviousData json.RawMessage `json:"previousData,omitempty"`
}

// RollbackLog is stored as a JSONB document on the session
type RollbackLog []RollbackOperation

func (l RollbackLog) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *RollbackLog) Scan(value interface{}) error {
	if value == nil {
		*l = make(RollbackLog, 0)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// StringList is stored as a JSONB document
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = make(StringList, 0)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// ImportSession is the staging record for one import attempt. It is a single
// row with embedded documents; sessions are short-lived staging artifacts
// and are not normalized across tables.
type ImportSession struct {
	ID                 uuid.UUID           `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID           string              `json:"tenantId" gorm:"not null;index:idx_import_sessions_tenant_catalog"`
	CatalogID          string              `json:"catalogId" gorm:"not null;index:idx_import_sessions_tenant_catalog"`
	UserID             string              `json:"userId" gorm:"not null"`
	Status             ImportSessionStatus `json:"status" gorm:"not null;default:'DRAFT';index"`
	ParsedData         ParsedImportData    `json:"parsedData" gorm:"type:jsonb"`
	ValidationErrors   ValidationIssueList `json:"validationErrors" gorm:"type:jsonb"`
	ValidationWarnings ValidationIssueList `json:"validationWarnings" gorm:"type:jsonb"`
	OriginalFiles      StringList          `json:"originalFiles" gorm:"type:jsonb"`
	RollbackLog        RollbackLog         `json:"rollbackLog,omitempty" gorm:"type:jsonb"`
	Metadata           datatypes.JSON      `json:"metadata,omitempty" gorm:"type:jsonb"`
	ExpiresAt          time.Time           `json:"expiresAt" gorm:"not null;index"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// TableName returns the table name for the ImportSession model
func (ImportSession) TableName() string {
	return "import_sessions"
}

type ImportSessionResponse struct {
	Success bool           `json:"success"`
	Data    *ImportSession `json:"data"`
	Message *string        `json:"message,omitempty"`
}

type ImportSessionListResponse struct {
	Success bool            `json:"success"`
	Data    []ImportSession `json:"data"`
}

// UpdateSessionDataRequest replaces a session's staged data with an edited copy
type UpdateSessionDataRequest struct {
	ParsedData ParsedImportData `json:"parsedData" binding:"required"`
}
