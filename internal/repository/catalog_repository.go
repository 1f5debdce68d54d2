package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"catalog-service/internal/models"
)

// Cache TTL constants
const (
	CategoryCacheTTL = 30 * time.Minute // Categories rarely change
	ItemCacheTTL     = 5 * time.Minute  // Single item cache
	ItemListCacheTTL = 2 * time.Minute  // Item list cache (shorter due to frequent changes)
)

// CatalogRepository is the persistence interface for catalog entities. It
// satisfies importer.CatalogStore, so a transaction-bound repository can be
// handed directly to the commit and rollback engines.
type CatalogRepository interface {
	ListCategories(tenantID, catalogID string) ([]models.Category, error)
	GetCategoryByID(tenantID string, id uuid.UUID) (*models.Category, error)
	CreateCategory(category *models.Category) error
	UpdateCategory(category *models.Category) error
	DeleteCategory(tenantID string, id uuid.UUID) error

	ListItemSizes(tenantID, catalogID string) ([]models.ItemSize, error)
	CreateItemSize(size *models.ItemSize) error
	UpdateItemSize(size *models.ItemSize) error
	DeleteItemSize(tenantID string, id uuid.UUID) error

	ListModifierGroups(tenantID, catalogID string) ([]models.ModifierGroup, error)
	CreateModifierGroup(group *models.ModifierGroup) error
	UpdateModifierGroup(group *models.ModifierGroup) error
	DeleteModifierGroup(tenantID string, id uuid.UUID) error

	ListModifiers(tenantID, catalogID string) ([]models.Modifier, error)
	ListModifiersByGroup(tenantID string, groupID uuid.UUID) ([]models.Modifier, error)
	CreateModifier(modifier *models.Modifier) error
	UpdateModifier(modifier *models.Modifier) error
	DeleteModifier(tenantID string, id uuid.UUID) error

	ListItems(tenantID, catalogID string) ([]models.Item, error)
	GetItemByID(tenantID string, id uuid.UUID) (*models.Item, error)
	GetItemsByCategory(tenantID string, categoryID uuid.UUID, page, limit int) ([]models.Item, int64, error)
	CreateItem(item *models.Item) error
	UpdateItem(item *models.Item) error
	DeleteItem(tenantID string, id uuid.UUID) error

	// WithTransaction runs fn with catalog and session repositories bound to
	// a single database transaction, so a commit and the session row that
	// records it land atomically. Any error from fn rolls the transaction
	// back.
	WithTransaction(fn func(txCatalog CatalogRepository, txSessions SessionRepository) error) error
}

type GormCatalogRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewCatalogRepository(db *gorm.DB, redisClient *redis.Client) *GormCatalogRepository {
	return &GormCatalogRepository{db: db, redis: redisClient}
}

func (r *GormCatalogRepository) WithTransaction(fn func(txCatalog CatalogRepository, txSessions SessionRepository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&GormCatalogRepository{db: tx, redis: r.redis}, NewSessionRepository(tx))
	})
}

// cacheGet fills dest from the read-through cache, returning false on a miss
func (r *GormCatalogRepository) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if r.redis == nil {
		return false
	}
	val, err := r.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), dest) == nil
}

func (r *GormCatalogRepository) cacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if r.redis == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	r.redis.Set(ctx, key, data, ttl)
}

// invalidatePattern deletes every cache key matching pattern. Best effort;
// a stale entry expires on its own TTL anyway.
func (r *GormCatalogRepository) invalidatePattern(ctx context.Context, pattern string) {
	if r.redis == nil {
		return
	}
	iter := r.redis.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		r.redis.Del(ctx, keys...)
	}
}

func (r *GormCatalogRepository) invalidateCatalogCaches(tenantID string) {
	r.invalidatePattern(context.Background(), fmt.Sprintf("catalog:*:%s:*", tenantID))
}

// Category Operations

func (r *GormCatalogRepository) ListCategories(tenantID, catalogID string) ([]models.Category, error) {
	var categories []models.Category
	err := r.db.Where("tenant_id = ? AND catalog_id = ?", tenantID, catalogID).
		Order("sort_order ASC, name ASC").
		Find(&categories).Error
	return categories, err
}

func (r *GormCatalogRepository) GetCategoryByID(tenantID string, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *GormCatalogRepository) CreateCategory(category *models.Category) error {
	if category.ID == uuid.Nil {
		category.ID = uuid.New()
	}
	category.CreatedAt = time.Now()
	category.UpdatedAt = time.Now()

	err := r.db.Create(category).Error
	if err == nil {
		r.invalidateCatalogCaches(category.TenantID)
	}
	return err
}

func (r *GormCatalogRepository) UpdateCategory(category *models.Category) error {
	category.UpdatedAt = time.Now()
	err := r.db.Save(category).Error
	if err == nil {
		r.invalidateCatalogCaches(category.TenantID)
	}
	return err
}

func (r *GormCatalogRepository) DeleteCategory(tenantID string, id uuid.UUID) error {
	err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.Category{}).Error
	if err == nil {
		r.invalidateCatalogCaches(tenantID)
	}
	return err
}

// Item Size Operations

func (r *GormCatalogRepository) ListItemSizes(tenantID, catalogID string) ([]models.ItemSize, error) {
	var sizes []models.ItemSize
	err := r.db.Where("tenant_id = ? AND catalog_id = ?", tenantID, catalogID).
		Order("sort_order ASC, size_code ASC").
		Find(&sizes).Error
	return sizes, err
}

func (r *GormCatalogRepository) CreateItemSize(size *models.ItemSize) error {
	if size.ID == uuid.Nil {
		size.ID = uuid.New()
	}
	size.CreatedAt = time.Now()
	size.UpdatedAt = time.Now()

	err := r.db.Create(size).Error
	if err == nil {
		r.invalidateCatalogCaches(size.TenantID)
	}
	return err
}

func (r *GormCatalogRepository) UpdateItemSize(size *models.ItemSize) error {
	size.UpdatedAt = time.Now()
	err := r.db.Save(size).Error
	if err == nil {
		r.invalidateCatalogCaches(size.TenantID)
	}
	return err
}

func (r *GormCatalogRepository) DeleteItemSize(tenantID string, id uuid.UUID) error {
	err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.ItemSize{}).Error
	if err == nil {
		r.invalidateCatalogCaches(tenantID)
	}
	return err
}

// Modifier Group Operations

func (r *GormCatalogRepository) ListModifierGroups(tenantID, catalogID string) ([]models.ModifierGroup, error) {
	var groups []models.ModifierGroup
	err := r.db.Where("tenant_id = ? AND catalog_id = ?", tenantID, catalogID).
		Order("sort_order ASC, name ASC").
		Find(&groups).Error
	return groups, err
}

func (r *GormCatalogRepository) CreateModifierGroup(group *models.ModifierGroup) error {
	if group.ID == uuid.Nil {
		group.ID = uuid.New()
	}
	group.CreatedAt = time.Now()
	group.UpdatedAt = time.Now()

	err := r.db.Create(group).Error
	if err == nil {
		r.invalidateCatalogCaches(group.TenantID)
	}
	return err
}

func (r *GormCatalogRepository) UpdateModifierGroup(group *models.ModifierGroup) error {
	group.UpdatedAt = time.Now()
	err := r.db.Save(group).Error
	if err == nil {
		r.invalidateCatalogCaches(group.TenantID)
	}
	return err
}

func (r *GormCatalogRepository) DeleteModifierGroup(tenantID string, id uuid.UUID) error {
	err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.ModifierGroup{}).Error
	if err == nil {
		r.invalidateCatalogCaches(tenantID)
	}
	return err
}

// Modifier Operations

func (r *GormCatalogRepository) ListModifiers(tenantID, catalogID string) ([]models.Modifier, error) {
	var modifiers []models.Modifier
	err := r.db.Where("tenant_id = ? AND catalog_id = ?", tenantID, catalogID).
		Order("sort_order ASC, name ASC").
		Find(&modifiers).Error
	return modifiers, err
}

func (r *GormCatalogRepository) ListModifiersByGroup(tenantID string, groupID uuid.UUID) ([]models.Modifier, error) {
	var modifiers []models.Modifier
	err := r.db.Where("tenant_id = ? AND group_id = ?", tenantID, groupID).
		Order("sort_order ASC, name ASC").
		Find(&modifiers).Error
	return modifiers, err
}

func (r *GormCatalogRepository) CreateModifier(modifier *models.Modifier) error {
	if modifier.ID == uuid.Nil {
		modifier.ID = uuid.New()
	}
	modifier.CreatedAt = time.Now()
	modifier.UpdatedAt = time.Now()

	err := r.db.Create(modifier).Error
	if err == nil {
		r.invalidateCatalogCaches(modifier.TenantID)
	}
	return err
}

func (r *GormCatalogRepository) UpdateModifier(modifier *models.Modifier) error {
	modifier.UpdatedAt = time.Now()
	err := r.db.Save(modifier).Error
	if err == nil {
		r.invalidateCatalogCaches(modifier.TenantID)
	}
	return err
}

func (r *GormCatalogRepository) DeleteModifier(tenantID string, id uuid.UUID) error {
	err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.Modifier{}).Error
	if err == nil {
		r.invalidateCatalogCaches(tenantID)
	}
	return err
}

// Item Operations

func (r *GormCatalogRepository) ListItems(tenantID, catalogID string) ([]models.Item, error) {
	var items []models.Item
	err := r.db.Where("tenant_id = ? AND catalog_id = ?", tenantID, catalogID).
		Order("sort_order ASC, name ASC").
		Find(&items).Error
	return items, err
}

// GetItemByID retrieves an item by ID with caching
func (r *GormCatalogRepository) GetItemByID(tenantID string, id uuid.UUID) (*models.Item, error) {
	ctx := context.Background()
	cacheKey := fmt.Sprintf("catalog:item:%s:%s", tenantID, id.String())

	var item models.Item
	if r.cacheGet(ctx, cacheKey, &item) {
		return &item, nil
	}

	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&item).Error; err != nil {
		return nil, err
	}

	r.cacheSet(ctx, cacheKey, item, ItemCacheTTL)
	return &item, nil
}

// GetItemsByCategory retrieves items of one category with pagination and caching
func (r *GormCatalogRepository) GetItemsByCategory(tenantID string, categoryID uuid.UUID, page, limit int) ([]models.Item, int64, error) {
	ctx := context.Background()
	cacheKey := fmt.Sprintf("catalog:items:%s:%s:%d:%d", tenantID, categoryID.String(), page, limit)

	type itemsResult struct {
		Items []models.Item `json:"items"`
		Total int64         `json:"total"`
	}
	var cached itemsResult
	if r.cacheGet(ctx, cacheKey, &cached) {
		return cached.Items, cached.Total, nil
	}

	var items []models.Item
	var total int64

	query := r.db.Model(&models.Item{}).Where("tenant_id = ? AND category_id = ?", tenantID, categoryID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("sort_order ASC, name ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}

	r.cacheSet(ctx, cacheKey, itemsResult{Items: items, Total: total}, ItemListCacheTTL)
	return items, total, nil
}

func (r *GormCatalogRepository) CreateItem(item *models.Item) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CreatedAt = time.Now()
	item.UpdatedAt = time.Now()

	err := r.db.Create(item).Error
	if err == nil {
		r.invalidateCatalogCaches(item.TenantID)
	}
	return err
}

func (r *GormCatalogRepository) UpdateItem(item *models.Item) error {
	item.UpdatedAt = time.Now()
	err := r.db.Save(item).Error
	if err == nil {
		r.invalidateCatalogCaches(item.TenantID)
	}
	return err
}

func (r *GormCatalogRepository) DeleteItem(tenantID string, id uuid.UUID) error {
	err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.Item{}).Error
	if err == nil {
		r.invalidateCatalogCaches(tenantID)
	}
	return err
}
