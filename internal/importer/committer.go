package importer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"catalog-service/internal/models"
)

// ErrUnresolvedReference marks commit failures caused by a natural-key
// reference that did not resolve. Validation should have caught these; the
// engine checks again because the referenced entity may have been deleted
// between validation and commit.
var ErrUnresolvedReference = errors.New("unresolved reference")

// CatalogStore is the slice of the catalog repository the commit and
// rollback engines need. Implementations are expected to be bound to one
// transaction for the duration of a commit or rollback; deleting an entity
// that is already gone is not an error.
type CatalogStore interface {
	ListCategories(tenantID, catalogID string) ([]models.Category, error)
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
	CreateModifier(modifier *models.Modifier) error
	UpdateModifier(modifier *models.Modifier) error
	DeleteModifier(tenantID string, id uuid.UUID) error

	ListItems(tenantID, catalogID string) ([]models.Item, error)
	CreateItem(item *models.Item) error
	UpdateItem(item *models.Item) error
	DeleteItem(tenantID string, id uuid.UUID) error
}

// Rollback log entity type tags
const (
	entityCategory      = "category"
	entityItemSize      = "item_size"
	entityModifierGroup = "modifier_group"
	entityModifier      = "modifier"
	entityItem          = "item"
)

// commitLog accumulates rollback operations with first-snapshot-wins
// bookkeeping: only the first touch of a given (entityType, id) pair in a
// commit produces an entry, so rollback restores the true pre-commit state
// rather than an intermediate one.
type commitLog struct {
	ops     models.RollbackLog
	touched map[string]bool
}

func newCommitLog() *commitLog {
	return &commitLog{touched: make(map[string]bool)}
}

func (l *commitLog) key(entityType string, id uuid.UUID) string {
	return entityType + ":" + id.String()
}

func (l *commitLog) recordCreate(entityType string, id uuid.UUID) {
	key := l.key(entityType, id)
	if l.touched[key] {
		return
	}
	l.touched[key] = true
	l.ops = append(l.ops, models.RollbackOperation{
		EntityType: entityType,
		Action:     models.RollbackActionCreate,
		ID:         id.String(),
	})
}

// recordUpdate snapshots the pre-image of an entity about to be updated.
// Must be called before the entity is mutated.
func (l *commitLog) recordUpdate(entityType string, id uuid.UUID, previous interface{}) error {
	key := l.key(entityType, id)
	if l.touched[key] {
		return nil
	}
	snapshot, err := json.Marshal(previous)
	if err != nil {
		return fmt.Errorf("failed to snapshot %s %s: %w", entityType, id, err)
	}
	l.touched[key] = true
	l.ops = append(l.ops, models.RollbackOperation{
		EntityType:   entityType,
		Action:       models.RollbackActionUpdate,
		ID:           id.String(),
		PreviousData: snapshot,
	})
	return nil
}

// resolver is the natural-key resolution context threaded through every
// commit stage. It is constructed once per commit and discarded after.
type resolver struct {
	categoryIDByName map[string]uuid.UUID
	categoryNameByID map[uuid.UUID]string
	sizeIDByCode     map[string]uuid.UUID
	groupIDByKey     map[string]uuid.UUID
	groupKeyByID     map[uuid.UUID]string
	modifierIDByKey  map[string]uuid.UUID // group key | modifier key
	itemIDByKey      map[string]uuid.UUID // item name | category name
	itemsByID        map[uuid.UUID]*models.Item
	defaultSizes     []defaultSizeRef
}

// defaultSizeRef records an is_default size row's claim on an item. The
// item may live only in the catalog, not in the upload, so resolution is
// deferred to the default-size linking stage.
type defaultSizeRef struct {
	itemName         string
	itemCategoryName string
	sizeCode         string
}

func newResolver() *resolver {
	return &resolver{
		categoryIDByName: make(map[string]uuid.UUID),
		categoryNameByID: make(map[uuid.UUID]string),
		sizeIDByCode:     make(map[string]uuid.UUID),
		groupIDByKey:     make(map[string]uuid.UUID),
		groupKeyByID:     make(map[uuid.UUID]string),
		modifierIDByKey:  make(map[string]uuid.UUID),
		itemIDByKey:      make(map[string]uuid.UUID),
		itemsByID:        make(map[uuid.UUID]*models.Item),
	}
}

// SaveAll applies the staged import data to the catalog as an upsert by
// natural key, in strict dependency order, and returns the operation log
// needed to reverse it. The caller is responsible for running it inside a
// single store transaction; any returned error must abort that transaction.
func SaveAll(store CatalogStore, tenantID, catalogID string, data *models.ParsedImportData) (models.RollbackLog, error) {
	r := newResolver()
	log := newCommitLog()

	if err := commitCategories(store, tenantID, catalogID, data, r, log); err != nil {
		return nil, err
	}
	if err := commitItemSizes(store, tenantID, catalogID, data, r, log); err != nil {
		return nil, err
	}
	if err := commitModifierGroups(store, tenantID, catalogID, data, r, log); err != nil {
		return nil, err
	}
	if err := commitModifiers(store, tenantID, catalogID, data, r, log); err != nil {
		return nil, err
	}
	if err := commitItems(store, tenantID, catalogID, data, r, log); err != nil {
		return nil, err
	}
	if err := linkDefaultSizes(store, data, r, log); err != nil {
		return nil, err
	}
	if err := assignModifierGroups(store, data, r, log); err != nil {
		return nil, err
	}

	return log.ops, nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func boolPtr(b bool) *bool {
	return &b
}

// commitCategories upserts parsed categories by case-insensitive name and
// seeds the category resolution maps with both existing and created entries.
func commitCategories(store CatalogStore, tenantID, catalogID string, data *models.ParsedImportData, r *resolver, log *commitLog) error {
	existing, err := store.ListCategories(tenantID, catalogID)
	if err != nil {
		return fmt.Errorf("failed to list categories: %w", err)
	}
	byName := make(map[string]*models.Category, len(existing))
	for i := range existing {
		c := &existing[i]
		byName[normKey(c.Name)] = c
		r.categoryIDByName[normKey(c.Name)] = c.ID
		r.categoryNameByID[c.ID] = c.Name
	}

	for _, parsed := range data.Categories {
		key := normKey(parsed.Name)
		if current, ok := byName[key]; ok {
			if err := log.recordUpdate(entityCategory, current.ID, current); err != nil {
				return err
			}
			current.Name = parsed.Name
			current.Description = optionalString(parsed.Description)
			current.SortOrder = parsed.SortOrder
			current.IsActive = boolPtr(parsed.IsActive)
			if err := store.UpdateCategory(current); err != nil {
				return fmt.Errorf("failed to update category %q: %w", parsed.Name, err)
			}
			continue
		}

		category := &models.Category{
			ID:          uuid.New(),
			TenantID:    tenantID,
			CatalogID:   catalogID,
			Name:        parsed.Name,
			Description: optionalString(parsed.Description),
			SortOrder:   parsed.SortOrder,
			IsActive:    boolPtr(parsed.IsActive),
		}
		if err := store.CreateCategory(category); err != nil {
			return fmt.Errorf("failed to create category %q: %w", parsed.Name, err)
		}
		log.recordCreate(entityCategory, category.ID)
		byName[key] = category
		r.categoryIDByName[key] = category.ID
		r.categoryNameByID[category.ID] = category.Name
	}

	return nil
}

// commitItemSizes upserts sizes by size code and records, per owning item
// natural key, which size code is the designated default.
func commitItemSizes(store CatalogStore, tenantID, catalogID string, data *models.ParsedImportData, r *resolver, log *commitLog) error {
	existing, err := store.ListItemSizes(tenantID, catalogID)
	if err != nil {
		return fmt.Errorf("failed to list item sizes: %w", err)
	}
	byCode := make(map[string]*models.ItemSize, len(existing))
	for i := range existing {
		s := &existing[i]
		byCode[normKey(s.SizeCode)] = s
		r.sizeIDByCode[normKey(s.SizeCode)] = s.ID
	}

	for _, parsed := range data.ItemSizes {
		name := parsed.Name
		if name == "" {
			name = parsed.SizeCode
		}

		key := normKey(parsed.SizeCode)
		if current, ok := byCode[key]; ok {
			if err := log.recordUpdate(entityItemSize, current.ID, current); err != nil {
				return err
			}
			current.SizeCode = parsed.SizeCode
			current.Name = name
			current.SortOrder = parsed.SortOrder
			if err := store.UpdateItemSize(current); err != nil {
				return fmt.Errorf("failed to update size %q: %w", parsed.SizeCode, err)
			}
		} else {
			size := &models.ItemSize{
				ID:        uuid.New(),
				TenantID:  tenantID,
				CatalogID: catalogID,
				SizeCode:  parsed.SizeCode,
				Name:      name,
				SortOrder: parsed.SortOrder,
				IsActive:  boolPtr(true),
			}
			if err := store.CreateItemSize(size); err != nil {
				return fmt.Errorf("failed to create size %q: %w", parsed.SizeCode, err)
			}
			log.recordCreate(entityItemSize, size.ID)
			byCode[key] = size
			r.sizeIDByCode[key] = size.ID
		}

		if parsed.ItemName != "" && parsed.IsDefault {
			r.defaultSizes = append(r.defaultSizes, defaultSizeRef{
				itemName:         parsed.ItemName,
				itemCategoryName: parsed.ItemCategoryName,
				sizeCode:         parsed.SizeCode,
			})
		}
	}

	return nil
}

// commitModifierGroups upserts groups by natural key and re-expresses any
// per-size pricing against the size ids resolved in the previous stage,
// dropping price entries whose size code did not resolve.
func commitModifierGroups(store CatalogStore, tenantID, catalogID string, data *models.ParsedImportData, r *resolver, log *commitLog) error {
	existing, err := store.ListModifierGroups(tenantID, catalogID)
	if err != nil {
		return fmt.Errorf("failed to list modifier groups: %w", err)
	}
	byKey := make(map[string]*models.ModifierGroup, len(existing))
	for i := range existing {
		g := &existing[i]
		byKey[normKey(g.GroupKey)] = g
		r.groupIDByKey[normKey(g.GroupKey)] = g.ID
		r.groupKeyByID[g.ID] = g.GroupKey
	}

	for _, parsed := range data.ModifierGroups {
		prices := resolvePricesBySize(parsed.PricesBySize, r)
		displayType := parsed.DisplayType
		if displayType == "" {
			displayType = "CHECKBOX"
		}

		key := normKey(parsed.Key())
		if current, ok := byKey[key]; ok {
			if err := log.recordUpdate(entityModifierGroup, current.ID, current); err != nil {
				return err
			}
			current.GroupKey = parsed.Key()
			current.Name = parsed.Name
			current.Description = optionalString(parsed.Description)
			current.DisplayType = displayType
			current.MinSelect = parsed.MinSelect
			current.MaxSelect = parsed.MaxSelect
			current.SortOrder = parsed.SortOrder
			current.PricesBySize = prices
			if err := store.UpdateModifierGroup(current); err != nil {
				return fmt.Errorf("failed to update modifier group %q: %w", parsed.Key(), err)
			}
			continue
		}

		group := &models.ModifierGroup{
			ID:           uuid.New(),
			TenantID:     tenantID,
			CatalogID:    catalogID,
			GroupKey:     parsed.Key(),
			Name:         parsed.Name,
			Description:  optionalString(parsed.Description),
			DisplayType:  displayType,
			MinSelect:    parsed.MinSelect,
			MaxSelect:    parsed.MaxSelect,
			SortOrder:    parsed.SortOrder,
			PricesBySize: prices,
			IsActive:     boolPtr(true),
		}
		if err := store.CreateModifierGroup(group); err != nil {
			return fmt.Errorf("failed to create modifier group %q: %w", parsed.Key(), err)
		}
		log.recordCreate(entityModifierGroup, group.ID)
		byKey[key] = group
		r.groupIDByKey[key] = group.ID
		r.groupKeyByID[group.ID] = group.GroupKey
	}

	return nil
}

func resolvePricesBySize(prices map[string]float64, r *resolver) *models.JSON {
	if len(prices) == 0 {
		return nil
	}
	resolved := make(models.JSON)
	for code, price := range prices {
		sizeID, ok := r.sizeIDByCode[normKey(code)]
		if !ok {
			continue
		}
		resolved[sizeID.String()] = price
	}
	if len(resolved) == 0 {
		return nil
	}
	return &resolved
}

// commitModifiers upserts modifiers by (group, key) within the group
// resolved in the previous stage. A modifier whose group did not resolve
// fails the whole commit.
func commitModifiers(store CatalogStore, tenantID, catalogID string, data *models.ParsedImportData, r *resolver, log *commitLog) error {
	existing, err := store.ListModifiers(tenantID, catalogID)
	if err != nil {
		return fmt.Errorf("failed to list modifiers: %w", err)
	}
	byKey := make(map[string]*models.Modifier, len(existing))
	for i := range existing {
		m := &existing[i]
		groupKey := r.groupKeyByID[m.GroupID]
		byKey[normKey(groupKey, m.ModifierKey)] = m
		r.modifierIDByKey[normKey(groupKey, m.ModifierKey)] = m.ID
	}

	for _, parsed := range data.Modifiers {
		groupID, ok := r.groupIDByKey[normKey(parsed.GroupKey)]
		if !ok {
			return fmt.Errorf("modifier %q references modifier group %q: %w", parsed.Name, parsed.GroupKey, ErrUnresolvedReference)
		}

		key := normKey(parsed.GroupKey, parsed.Key())
		if current, ok := byKey[key]; ok {
			if err := log.recordUpdate(entityModifier, current.ID, current); err != nil {
				return err
			}
			current.GroupID = groupID
			current.ModifierKey = parsed.Key()
			current.Name = parsed.Name
			current.Price = parsed.Price
			current.MaxQuantity = parsed.MaxQuantity
			current.IsDefault = parsed.IsDefault
			current.SortOrder = parsed.SortOrder
			if err := store.UpdateModifier(current); err != nil {
				return fmt.Errorf("failed to update modifier %q: %w", parsed.Name, err)
			}
			continue
		}

		modifier := &models.Modifier{
			ID:          uuid.New(),
			TenantID:    tenantID,
			CatalogID:   catalogID,
			GroupID:     groupID,
			ModifierKey: parsed.Key(),
			Name:        parsed.Name,
			Price:       parsed.Price,
			MaxQuantity: parsed.MaxQuantity,
			IsDefault:   parsed.IsDefault,
			SortOrder:   parsed.SortOrder,
			IsActive:    boolPtr(true),
		}
		if err := store.CreateModifier(modifier); err != nil {
			return fmt.Errorf("failed to create modifier %q: %w", parsed.Name, err)
		}
		log.recordCreate(entityModifier, modifier.ID)
		byKey[key] = modifier
		r.modifierIDByKey[key] = modifier.ID
	}

	return nil
}

// commitItems upserts items by composite (name, category) natural key. The
// default-size linkage and modifier-group assignments are deferred to the
// later stages.
func commitItems(store CatalogStore, tenantID, catalogID string, data *models.ParsedImportData, r *resolver, log *commitLog) error {
	existing, err := store.ListItems(tenantID, catalogID)
	if err != nil {
		return fmt.Errorf("failed to list items: %w", err)
	}
	for i := range existing {
		item := &existing[i]
		key := normKey(item.Name, r.categoryNameByID[item.CategoryID])
		r.itemIDByKey[key] = item.ID
		r.itemsByID[item.ID] = item
	}

	for _, parsed := range data.Items {
		categoryID, err := resolveItemCategory(parsed, r)
		if err != nil {
			return err
		}

		key := normKey(parsed.Name, r.categoryNameByID[categoryID])
		if id, ok := r.itemIDByKey[key]; ok {
			current := r.itemsByID[id]
			if err := log.recordUpdate(entityItem, current.ID, current); err != nil {
				return err
			}
			current.CategoryID = categoryID
			current.Name = parsed.Name
			current.Description = optionalString(parsed.Description)
			current.BasePrice = parsed.BasePrice
			current.IsSizeable = parsed.IsSizeable
			current.SortOrder = parsed.SortOrder
			current.IsActive = boolPtr(parsed.IsActive)
			if err := store.UpdateItem(current); err != nil {
				return fmt.Errorf("failed to update item %q: %w", parsed.Name, err)
			}
			continue
		}

		item := &models.Item{
			ID:          uuid.New(),
			TenantID:    tenantID,
			CatalogID:   catalogID,
			CategoryID:  categoryID,
			Name:        parsed.Name,
			Description: optionalString(parsed.Description),
			BasePrice:   parsed.BasePrice,
			IsSizeable:  parsed.IsSizeable,
			SortOrder:   parsed.SortOrder,
			IsActive:    boolPtr(parsed.IsActive),
		}
		if err := store.CreateItem(item); err != nil {
			return fmt.Errorf("failed to create item %q: %w", parsed.Name, err)
		}
		log.recordCreate(entityItem, item.ID)
		r.itemIDByKey[key] = item.ID
		r.itemsByID[item.ID] = item
	}

	return nil
}

func resolveItemCategory(parsed models.ParsedItem, r *resolver) (uuid.UUID, error) {
	if parsed.CategoryID != "" {
		id, err := uuid.Parse(parsed.CategoryID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("item %q has invalid category id %q: %w", parsed.Name, parsed.CategoryID, ErrUnresolvedReference)
		}
		if _, ok := r.categoryNameByID[id]; !ok {
			return uuid.Nil, fmt.Errorf("item %q references category id %q: %w", parsed.Name, parsed.CategoryID, ErrUnresolvedReference)
		}
		return id, nil
	}
	id, ok := r.categoryIDByName[normKey(parsed.CategoryName)]
	if !ok {
		return uuid.Nil, fmt.Errorf("item %q references category %q: %w", parsed.Name, parsed.CategoryName, ErrUnresolvedReference)
	}
	return id, nil
}

// resolveItemID resolves an item natural-key reference, tolerating a
// missing category qualifier.
func (r *resolver) resolveItemID(name, categoryName string) (uuid.UUID, bool) {
	if id, ok := r.itemIDByKey[normKey(name, categoryName)]; ok {
		return id, true
	}
	if categoryName != "" {
		return uuid.Nil, false
	}
	// No category qualifier: match by name alone if unambiguous.
	var found uuid.UUID
	matches := 0
	nameKey := normKey(name)
	for _, item := range r.itemsByID {
		if normKey(item.Name) == nameKey {
			found = item.ID
			matches++
		}
	}
	return found, matches == 1
}

// linkDefaultSizes sets the designated default size on every item that
// recorded one, either explicitly or via a default-marked size row. The
// target item may come from the upload or already live in the catalog;
// unresolvable references are skipped silently.
func linkDefaultSizes(store CatalogStore, data *models.ParsedImportData, r *resolver, log *commitLog) error {
	codeByItem := make(map[uuid.UUID]string)
	var order []uuid.UUID
	record := func(id uuid.UUID, code string) {
		if _, ok := codeByItem[id]; !ok {
			order = append(order, id)
		}
		codeByItem[id] = code
	}

	for _, ref := range r.defaultSizes {
		if itemID, ok := r.resolveItemID(ref.itemName, ref.itemCategoryName); ok {
			record(itemID, ref.sizeCode)
		}
	}
	// An explicit default_size on the item row wins over a size-row flag.
	for _, parsed := range data.Items {
		if parsed.DefaultSizeCode == "" {
			continue
		}
		if itemID, ok := r.resolveItemID(parsed.Name, parsed.CategoryName); ok {
			record(itemID, parsed.DefaultSizeCode)
		}
	}

	for _, itemID := range order {
		sizeID, ok := r.sizeIDByCode[normKey(codeByItem[itemID])]
		if !ok {
			continue
		}
		item := r.itemsByID[itemID]
		if err := log.recordUpdate(entityItem, item.ID, item); err != nil {
			return err
		}
		item.DefaultSizeID = &sizeID
		if err := store.UpdateItem(item); err != nil {
			return fmt.Errorf("failed to link default size for item %q: %w", item.Name, err)
		}
	}
	return nil
}

// assignModifierGroups writes modifier-group assignments with per-item
// overrides onto each item the import has overrides for. Groups present in
// the import replace the item's prior assignment for those groups; groups
// the import does not mention are preserved, so manually configured
// assignments survive a partial file.
func assignModifierGroups(store CatalogStore, data *models.ParsedImportData, r *resolver, log *commitLog) error {
	type itemOverrides struct {
		itemID    uuid.UUID
		byGroup   map[string][]models.ParsedItemModifierOverride
		groupSeen []string // preserves group encounter order
	}

	collected := make(map[uuid.UUID]*itemOverrides)
	var order []uuid.UUID

	for _, o := range data.ItemModifierOverrides {
		itemID, ok := r.resolveItemID(o.ItemName, o.ItemCategoryName)
		if !ok {
			return fmt.Errorf("override references item %q: %w", o.ItemName, ErrUnresolvedReference)
		}
		entry, ok := collected[itemID]
		if !ok {
			entry = &itemOverrides{itemID: itemID, byGroup: make(map[string][]models.ParsedItemModifierOverride)}
			collected[itemID] = entry
			order = append(order, itemID)
		}
		groupKey := normKey(o.GroupKey)
		if _, ok := entry.byGroup[groupKey]; !ok {
			entry.groupSeen = append(entry.groupSeen, groupKey)
		}
		entry.byGroup[groupKey] = append(entry.byGroup[groupKey], o)
	}

	for _, itemID := range order {
		entry := collected[itemID]
		item := r.itemsByID[itemID]

		var assignments []models.ItemModifierGroup
		replaced := make(map[string]bool)

		for _, groupKey := range entry.groupSeen {
			overrides := entry.byGroup[groupKey]
			groupID, ok := r.groupIDByKey[groupKey]
			if !ok {
				return fmt.Errorf("override references modifier group %q: %w", overrides[0].GroupKey, ErrUnresolvedReference)
			}

			assignment := models.ItemModifierGroup{
				ModifierGroupID: groupID.String(),
				DisplayOrder:    overrides[0].DisplayOrder,
			}
			for _, o := range overrides {
				modifierID, ok := r.modifierIDByKey[normKey(o.GroupKey, o.ModifierKey)]
				if !ok {
					return fmt.Errorf("override references modifier %q in group %q: %w", o.ModifierKey, o.GroupKey, ErrUnresolvedReference)
				}
				assignment.ModifierOverrides = append(assignment.ModifierOverrides, models.ItemModifierOverride{
					ModifierID:  modifierID.String(),
					Price:       o.Price,
					IsDefault:   o.IsDefault,
					MaxQuantity: o.MaxQuantity,
				})
			}
			assignments = append(assignments, assignment)
			replaced[assignment.ModifierGroupID] = true
		}

		if err := log.recordUpdate(entityItem, item.ID, item); err != nil {
			return err
		}

		// Merge: keep prior assignments for groups this import does not cover.
		merged := make(models.ItemModifierGroupList, 0, len(assignments)+len(item.ModifierGroups))
		for _, prior := range item.ModifierGroups {
			if !replaced[prior.ModifierGroupID] {
				merged = append(merged, prior)
			}
		}
		merged = append(merged, assignments...)
		item.ModifierGroups = merged

		if err := store.UpdateItem(item); err != nil {
			return fmt.Errorf("failed to assign modifier groups for item %q: %w", item.Name, err)
		}
	}

	return nil
}
