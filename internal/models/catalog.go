package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JSON type for PostgreSQL JSONB (object/map)
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// JSONArray type for PostgreSQL JSONB (array)
type JSONArray []interface{}

func (j JSONArray) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONArray) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONArray, 0)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Category represents a catalog category
type Category struct {
	ID          uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID    string          `json:"tenantId" gorm:"not null;index:idx_categories_tenant_catalog"`
	CatalogID   string          `json:"catalogId" gorm:"not null;index:idx_categories_tenant_catalog"`
	Name        string          `json:"name" gorm:"not null"`
	Description *string         `json:"description,omitempty"`
	SortOrder   int             `json:"sortOrder" gorm:"not null;default:0"`
	IsActive    *bool           `json:"isActive" gorm:"default:true"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	DeletedAt   *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`
	CreatedBy   *string         `json:"createdBy,omitempty"`
	UpdatedBy   *string         `json:"updatedBy,omitempty"`
}

// ItemSize represents a size definition shared across sizeable items
// (e.g. Small/Medium/Large). Sizes are catalog-global and referenced from
// items by id.
type ItemSize struct {
	ID        uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID  string          `json:"tenantId" gorm:"not null;index:idx_item_sizes_tenant_catalog"`
	CatalogID string          `json:"catalogId" gorm:"not null;index:idx_item_sizes_tenant_catalog"`
	SizeCode  string          `json:"sizeCode" gorm:"not null"`
	Name      string          `json:"name" gorm:"not null"`
	SortOrder int             `json:"sortOrder" gorm:"not null;default:0"`
	IsActive  *bool           `json:"isActive" gorm:"default:true"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	DeletedAt *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`
}

// ModifierGroup represents a group of selectable modifiers (e.g. "Toppings")
type ModifierGroup struct {
	ID          uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID    string          `json:"tenantId" gorm:"not null;index:idx_modifier_groups_tenant_catalog"`
	CatalogID   string          `json:"catalogId" gorm:"not null;index:idx_modifier_groups_tenant_catalog"`
	GroupKey    string          `json:"groupKey" gorm:"not null"`
	Name        string          `json:"name" gorm:"not null"`
	Description *string         `json:"description,omitempty"`
	DisplayType string          `json:"displayType" gorm:"not null;default:'CHECKBOX'"`
	MinSelect   int             `json:"minSelect" gorm:"not null;default:0"`
	MaxSelect   int             `json:"maxSelect" gorm:"not null;default:0"`
	SortOrder   int             `json:"sortOrder" gorm:"not null;default:0"`
	// Per-size pricing keyed by item size id, re-expressed from size codes at
	// import commit time.
	PricesBySize *JSON           `json:"pricesBySize,omitempty" gorm:"type:jsonb"`
	IsActive     *bool           `json:"isActive" gorm:"default:true"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	DeletedAt    *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`
}

// Modifier represents one selectable option inside a modifier group
type Modifier struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID    string    `json:"tenantId" gorm:"not null;index:idx_modifiers_tenant_catalog"`
	CatalogID   string    `json:"catalogId" gorm:"not null;index:idx_modifiers_tenant_catalog"`
	GroupID     uuid.UUID `json:"groupId" gorm:"type:uuid;not null;index"`
	ModifierKey string    `json:"modifierKey" gorm:"not null"`
	Name        string    `json:"name" gorm:"not null"`
	Price       float64   `json:"price" gorm:"not null;default:0"`
	MaxQuantity int       `json:"maxQuantity" gorm:"not null;default:0"`
	IsDefault   bool      `json:"isDefault" gorm:"not null;default:false"`
	SortOrder   int       `json:"sortOrder" gorm:"not null;default:0"`
	// Quantity-level pricing is passed through opaquely; the import pipeline
	// never interprets it.
	QuantityLevels datatypes.JSON  `json:"quantityLevels,omitempty" gorm:"type:jsonb"`
	IsActive       *bool           `json:"isActive" gorm:"default:true"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	DeletedAt      *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`
}

// ItemModifierOverride customizes one modifier when attached to an item
type ItemModifierOverride struct {
	ModifierID  string   `json:"modifierId"`
	Price       *float64 `json:"price,omitempty"`
	IsDefault   *bool    `json:"isDefault,omitempty"`
	MaxQuantity *int     `json:"maxQuantity,omitempty"`
}

// ItemModifierGroup is one modifier-group assignment on an item
type ItemModifierGroup struct {
	ModifierGroupID   string                 `json:"modifierGroupId"`
	DisplayOrder      int                    `json:"displayOrder"`
	ModifierOverrides []ItemModifierOverride `json:"modifierOverrides,omitempty"`
}

// ItemModifierGroupList is stored as a JSONB document on the item
type ItemModifierGroupList []ItemModifierGroup

func (l ItemModifierGroupList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *ItemModifierGroupList) Scan(value interface{}) error {
	if value == nil {
		*l = make(ItemModifierGroupList, 0)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// Item represents a sellable catalog item
type Item struct {
	ID            uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID      string     `json:"tenantId" gorm:"not null;index:idx_items_tenant_catalog"`
	CatalogID     string     `json:"catalogId" gorm:"not null;index:idx_items_tenant_catalog"`
	CategoryID    uuid.UUID  `json:"categoryId" gorm:"type:uuid;not null;index"`
	Name          string     `json:"name" gorm:"not null"`
	Description   *string    `json:"description,omitempty"`
	BasePrice     float64    `json:"basePrice" gorm:"not null;default:0"`
	IsSizeable    bool       `json:"isSizeable" gorm:"not null;default:false"`
	DefaultSizeID *uuid.UUID `json:"defaultSizeId,omitempty" gorm:"type:uuid"`
	// Modifier-group assignments with per-item overrides, embedded as JSONB.
	ModifierGroups ItemModifierGroupList `json:"modifierGroups,omitempty" gorm:"type:jsonb"`
	SortOrder      int                   `json:"sortOrder" gorm:"not null;default:0"`
	IsActive       *bool                 `json:"isActive" gorm:"default:true"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
	DeletedAt      *gorm.DeletedAt       `json:"deletedAt,omitempty" gorm:"index"`
	CreatedBy      *string               `json:"createdBy,omitempty"`
	UpdatedBy      *string               `json:"updatedBy,omitempty"`
}

// TableName returns the table name for the Category model
func (Category) TableName() string {
	return "categories"
}

// TableName returns the table name for the ItemSize model
func (ItemSize) TableName() string {
	return "item_sizes"
}

// TableName returns the table name for the ModifierGroup model
func (ModifierGroup) TableName() string {
	return "modifier_groups"
}

// TableName returns the table name for the Modifier model
func (Modifier) TableName() string {
	return "modifiers"
}

// TableName returns the table name for the Item model
func (Item) TableName() string {
	return "items"
}

// Response types
type PaginationInfo struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"totalPages"`
	HasNext     bool  `json:"hasNext"`
	HasPrevious bool  `json:"hasPrevious"`
}

type CategoryListResponse struct {
	Success bool       `json:"success"`
	Data    []Category `json:"data"`
}

type ItemListResponse struct {
	Success bool   `json:"success"`
	Data    []Item `json:"data"`
}

type ItemSizeListResponse struct {
	Success bool       `json:"success"`
	Data    []ItemSize `json:"data"`
}

type ModifierGroupWithModifiers struct {
	ModifierGroup
	Modifiers []Modifier `json:"modifiers"`
}

type ModifierGroupListResponse struct {
	Success bool                         `json:"success"`
	Data    []ModifierGroupWithModifiers `json:"data"`
}

type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     Error  `json:"error"`
	Timestamp string `json:"timestamp,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Details *JSON  `json:"details,omitempty"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message *string     `json:"message,omitempty"`
}
