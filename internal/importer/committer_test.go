package importer

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"catalog-service/internal/models"
)

const (
	testTenant  = "tenant-1"
	testCatalog = "catalog-1"
)

// fakeStore is an in-memory CatalogStore. It keeps value copies so the
// engine's pointer mutations only become visible through Update calls, and
// it journals every write for ordering assertions.
type fakeStore struct {
	categories map[uuid.UUID]models.Category
	sizes      map[uuid.UUID]models.ItemSize
	groups     map[uuid.UUID]models.ModifierGroup
	modifiers  map[uuid.UUID]models.Modifier
	items      map[uuid.UUID]models.Item
	journal    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		categories: make(map[uuid.UUID]models.Category),
		sizes:      make(map[uuid.UUID]models.ItemSize),
		groups:     make(map[uuid.UUID]models.ModifierGroup),
		modifiers:  make(map[uuid.UUID]models.Modifier),
		items:      make(map[uuid.UUID]models.Item),
	}
}

func (s *fakeStore) log(op, entity string, id uuid.UUID) {
	s.journal = append(s.journal, op+" "+entity+" "+id.String())
}

func (s *fakeStore) ListCategories(tenantID, catalogID string) ([]models.Category, error) {
	var out []models.Category
	for _, c := range s.categories {
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeStore) CreateCategory(c *models.Category) error {
	s.categories[c.ID] = *c
	s.log("create", entityCategory, c.ID)
	return nil
}

func (s *fakeStore) UpdateCategory(c *models.Category) error {
	s.categories[c.ID] = *c
	s.log("update", entityCategory, c.ID)
	return nil
}

func (s *fakeStore) DeleteCategory(tenantID string, id uuid.UUID) error {
	delete(s.categories, id)
	s.log("delete", entityCategory, id)
	return nil
}

func (s *fakeStore) ListItemSizes(tenantID, catalogID string) ([]models.ItemSize, error) {
	var out []models.ItemSize
	for _, v := range s.sizes {
		out = append(out, v)
	}
	return out, nil
}

func (s *fakeStore) CreateItemSize(v *models.ItemSize) error {
	s.sizes[v.ID] = *v
	s.log("create", entityItemSize, v.ID)
	return nil
}

func (s *fakeStore) UpdateItemSize(v *models.ItemSize) error {
	s.sizes[v.ID] = *v
	s.log("update", entityItemSize, v.ID)
	return nil
}

func (s *fakeStore) DeleteItemSize(tenantID string, id uuid.UUID) error {
	delete(s.sizes, id)
	s.log("delete", entityItemSize, id)
	return nil
}

func (s *fakeStore) ListModifierGroups(tenantID, catalogID string) ([]models.ModifierGroup, error) {
	var out []models.ModifierGroup
	for _, v := range s.groups {
		out = append(out, v)
	}
	return out, nil
}

func (s *fakeStore) CreateModifierGroup(v *models.ModifierGroup) error {
	s.groups[v.ID] = *v
	s.log("create", entityModifierGroup, v.ID)
	return nil
}

func (s *fakeStore) UpdateModifierGroup(v *models.ModifierGroup) error {
	s.groups[v.ID] = *v
	s.log("update", entityModifierGroup, v.ID)
	return nil
}

func (s *fakeStore) DeleteModifierGroup(tenantID string, id uuid.UUID) error {
	delete(s.groups, id)
	s.log("delete", entityModifierGroup, id)
	return nil
}

func (s *fakeStore) ListModifiers(tenantID, catalogID string) ([]models.Modifier, error) {
	var out []models.Modifier
	for _, v := range s.modifiers {
		out = append(out, v)
	}
	return out, nil
}

func (s *fakeStore) CreateModifier(v *models.Modifier) error {
	s.modifiers[v.ID] = *v
	s.log("create", entityModifier, v.ID)
	return nil
}

func (s *fakeStore) UpdateModifier(v *models.Modifier) error {
	s.modifiers[v.ID] = *v
	s.log("update", entityModifier, v.ID)
	return nil
}

func (s *fakeStore) DeleteModifier(tenantID string, id uuid.UUID) error {
	delete(s.modifiers, id)
	s.log("delete", entityModifier, id)
	return nil
}

func (s *fakeStore) ListItems(tenantID, catalogID string) ([]models.Item, error) {
	var out []models.Item
	for _, v := range s.items {
		out = append(out, v)
	}
	return out, nil
}

func (s *fakeStore) CreateItem(v *models.Item) error {
	s.items[v.ID] = *v
	s.log("create", entityItem, v.ID)
	return nil
}

func (s *fakeStore) UpdateItem(v *models.Item) error {
	s.items[v.ID] = *v
	s.log("update", entityItem, v.ID)
	return nil
}

func (s *fakeStore) DeleteItem(tenantID string, id uuid.UUID) error {
	delete(s.items, id)
	s.log("delete", entityItem, id)
	return nil
}

// fullImportData is a coherent upload touching every entity kind.
func fullImportData() *models.ParsedImportData {
	return &models.ParsedImportData{
		Categories: []models.ParsedCategory{
			{Name: "Drinks", Description: "Hot and cold", SortOrder: 1, IsActive: true},
		},
		ItemSizes: []models.ParsedItemSize{
			{SizeCode: "S", Name: "Small", ItemName: "Latte", SortOrder: 1},
			{SizeCode: "M", Name: "Medium", ItemName: "Latte", IsDefault: true, SortOrder: 2},
		},
		ModifierGroups: []models.ParsedModifierGroup{
			{GroupKey: "milk", Name: "Milk", DisplayType: "RADIO", MaxSelect: 1,
				PricesBySize: map[string]float64{"S": 0.50, "M": 0.75}},
		},
		Modifiers: []models.ParsedModifier{
			{GroupKey: "milk", ModifierKey: "oat", Name: "Oat Milk", Price: 0.60},
		},
		Items: []models.ParsedItem{
			{Name: "Latte", CategoryName: "Drinks", IsSizeable: true, IsActive: true, SortOrder: 1},
		},
		ItemModifierOverrides: []models.ParsedItemModifierOverride{
			{ItemName: "Latte", GroupKey: "milk", ModifierKey: "oat", DisplayOrder: 1},
		},
	}
}

func singleCategory(s *fakeStore) models.Category {
	for _, c := range s.categories {
		return c
	}
	return models.Category{}
}

func singleItem(s *fakeStore) models.Item {
	for _, i := range s.items {
		return i
	}
	return models.Item{}
}

func singleGroup(s *fakeStore) models.ModifierGroup {
	for _, g := range s.groups {
		return g
	}
	return models.ModifierGroup{}
}

func TestSaveAllFreshImport(t *testing.T) {
	store := newFakeStore()

	log, err := SaveAll(store, testTenant, testCatalog, fullImportData())
	assert.NoError(t, err)

	assert.Len(t, store.categories, 1)
	assert.Len(t, store.sizes, 2)
	assert.Len(t, store.groups, 1)
	assert.Len(t, store.modifiers, 1)
	assert.Len(t, store.items, 1)

	// Everything was new, so the log is pure creates. The later default-size
	// and override stages touch the item again but append nothing.
	assert.Len(t, log, 6)
	for _, op := range log {
		assert.Equal(t, models.RollbackActionCreate, op.Action)
		assert.Empty(t, op.PreviousData)
	}

	item := singleItem(store)
	assert.Equal(t, testTenant, item.TenantID)
	assert.Equal(t, testCatalog, item.CatalogID)
	assert.True(t, item.IsSizeable)

	var sizeM uuid.UUID
	for _, size := range store.sizes {
		if size.SizeCode == "M" {
			sizeM = size.ID
		}
	}
	if assert.NotNil(t, item.DefaultSizeID) {
		assert.Equal(t, sizeM, *item.DefaultSizeID)
	}

	group := singleGroup(store)
	modifier := func() models.Modifier {
		for _, m := range store.modifiers {
			return m
		}
		return models.Modifier{}
	}()
	assert.Equal(t, group.ID, modifier.GroupID)

	if assert.Len(t, item.ModifierGroups, 1) {
		assignment := item.ModifierGroups[0]
		assert.Equal(t, group.ID.String(), assignment.ModifierGroupID)
		assert.Equal(t, 1, assignment.DisplayOrder)
		if assert.Len(t, assignment.ModifierOverrides, 1) {
			assert.Equal(t, modifier.ID.String(), assignment.ModifierOverrides[0].ModifierID)
		}
	}

	// Per-size prices were re-keyed from size codes to size ids.
	if assert.NotNil(t, group.PricesBySize) {
		prices := *group.PricesBySize
		assert.Len(t, prices, 2)
		assert.Equal(t, 0.75, prices[sizeM.String()])
	}
}

func TestSaveAllReimportIsUpsert(t *testing.T) {
	store := newFakeStore()

	_, err := SaveAll(store, testTenant, testCatalog, fullImportData())
	assert.NoError(t, err)
	firstItem := singleItem(store)

	log, err := SaveAll(store, testTenant, testCatalog, fullImportData())
	assert.NoError(t, err)

	// Re-importing identical data updates in place, never duplicates.
	assert.Len(t, store.categories, 1)
	assert.Len(t, store.sizes, 2)
	assert.Len(t, store.groups, 1)
	assert.Len(t, store.modifiers, 1)
	assert.Len(t, store.items, 1)
	assert.Equal(t, firstItem.ID, singleItem(store).ID)

	assert.Len(t, log, 6)
	for _, op := range log {
		assert.Equal(t, models.RollbackActionUpdate, op.Action)
		assert.NotEmpty(t, op.PreviousData)
	}
}

func TestSaveAllMatchesNaturalKeysCaseInsensitively(t *testing.T) {
	store := newFakeStore()
	_, err := SaveAll(store, testTenant, testCatalog, fullImportData())
	assert.NoError(t, err)

	data := &models.ParsedImportData{
		Categories: []models.ParsedCategory{{Name: "DRINKS", IsActive: true}},
		Items: []models.ParsedItem{
			{Name: "LATTE", CategoryName: "drinks", BasePrice: 5, IsActive: true},
		},
	}
	_, err = SaveAll(store, testTenant, testCatalog, data)
	assert.NoError(t, err)

	assert.Len(t, store.categories, 1)
	assert.Len(t, store.items, 1)
	// The upsert adopts the incoming spelling.
	assert.Equal(t, "DRINKS", singleCategory(store).Name)
	assert.Equal(t, "LATTE", singleItem(store).Name)
}

func TestSaveAllFirstSnapshotWins(t *testing.T) {
	store := newFakeStore()

	categoryID := uuid.New()
	itemID := uuid.New()
	original := "Original description"
	store.categories[categoryID] = models.Category{
		ID: categoryID, TenantID: testTenant, CatalogID: testCatalog, Name: "Drinks",
	}
	store.items[itemID] = models.Item{
		ID: itemID, TenantID: testTenant, CatalogID: testCatalog,
		CategoryID: categoryID, Name: "Latte", Description: &original,
	}

	// The import updates the item in the upsert stage, then touches it again
	// linking the default size and assigning modifier groups.
	data := fullImportData()
	data.Items[0].Description = "Updated description"

	log, err := SaveAll(store, testTenant, testCatalog, data)
	assert.NoError(t, err)

	var itemOps []models.RollbackOperation
	for _, op := range log {
		if op.EntityType == entityItem {
			itemOps = append(itemOps, op)
		}
	}
	// Three stages touched the item; only the first snapshot is kept.
	if assert.Len(t, itemOps, 1) {
		assert.Equal(t, models.RollbackActionUpdate, itemOps[0].Action)
		var snapshot models.Item
		assert.NoError(t, json.Unmarshal(itemOps[0].PreviousData, &snapshot))
		assert.Equal(t, itemID, snapshot.ID)
		if assert.NotNil(t, snapshot.Description) {
			assert.Equal(t, original, *snapshot.Description)
		}
		assert.Nil(t, snapshot.DefaultSizeID)
		assert.Empty(t, snapshot.ModifierGroups)
	}
}

func TestSaveAllCreateThenLinkLeavesOneCreateOp(t *testing.T) {
	store := newFakeStore()

	log, err := SaveAll(store, testTenant, testCatalog, fullImportData())
	assert.NoError(t, err)

	itemOps := 0
	for _, op := range log {
		if op.EntityType == entityItem {
			itemOps++
			assert.Equal(t, models.RollbackActionCreate, op.Action)
		}
	}
	assert.Equal(t, 1, itemOps)
}

func TestSaveAllResolvesItemByCategoryID(t *testing.T) {
	store := newFakeStore()
	categoryID := uuid.New()
	store.categories[categoryID] = models.Category{
		ID: categoryID, TenantID: testTenant, CatalogID: testCatalog, Name: "Drinks",
	}

	data := &models.ParsedImportData{
		Items: []models.ParsedItem{
			{Name: "Latte", CategoryID: categoryID.String(), BasePrice: 4, IsActive: true},
		},
	}
	_, err := SaveAll(store, testTenant, testCatalog, data)
	assert.NoError(t, err)

	assert.Equal(t, categoryID, singleItem(store).CategoryID)
}

func TestSaveAllUnresolvedReferences(t *testing.T) {
	cases := map[string]*models.ParsedImportData{
		"item with unknown category": {
			Items: []models.ParsedItem{{Name: "Latte", CategoryName: "Nope"}},
		},
		"item with unknown category id": {
			Items: []models.ParsedItem{{Name: "Latte", CategoryID: uuid.New().String()}},
		},
		"item with malformed category id": {
			Items: []models.ParsedItem{{Name: "Latte", CategoryID: "not-a-uuid"}},
		},
		"modifier with unknown group": {
			Modifiers: []models.ParsedModifier{{Name: "Oat", ModifierKey: "oat", GroupKey: "ghost"}},
		},
		"override with unknown item": {
			ItemModifierOverrides: []models.ParsedItemModifierOverride{
				{ItemName: "Phantom", GroupKey: "milk", ModifierKey: "oat"},
			},
		},
	}

	for name, data := range cases {
		store := newFakeStore()
		_, err := SaveAll(store, testTenant, testCatalog, data)
		assert.ErrorIs(t, err, ErrUnresolvedReference, name)
	}
}

func TestSaveAllDropsUnresolvedSizePrices(t *testing.T) {
	store := newFakeStore()

	data := &models.ParsedImportData{
		ItemSizes: []models.ParsedItemSize{{SizeCode: "S", Name: "Small"}},
		ModifierGroups: []models.ParsedModifierGroup{
			{GroupKey: "milk", Name: "Milk", PricesBySize: map[string]float64{"S": 0.50, "XX": 1.00}},
			{GroupKey: "syrup", Name: "Syrup", PricesBySize: map[string]float64{"XX": 1.00}},
		},
	}
	_, err := SaveAll(store, testTenant, testCatalog, data)
	assert.NoError(t, err)

	for _, g := range store.groups {
		switch g.GroupKey {
		case "milk":
			if assert.NotNil(t, g.PricesBySize) {
				assert.Len(t, *g.PricesBySize, 1)
			}
		case "syrup":
			// All codes unresolved leaves no pricing at all.
			assert.Nil(t, g.PricesBySize)
		}
	}
}

func TestSaveAllOverrideMergePreservesOtherGroups(t *testing.T) {
	store := newFakeStore()

	categoryID := uuid.New()
	itemID := uuid.New()
	priorGroupID := uuid.New().String()
	store.categories[categoryID] = models.Category{
		ID: categoryID, TenantID: testTenant, CatalogID: testCatalog, Name: "Drinks",
	}
	store.items[itemID] = models.Item{
		ID: itemID, TenantID: testTenant, CatalogID: testCatalog,
		CategoryID: categoryID, Name: "Latte",
		ModifierGroups: models.ItemModifierGroupList{
			{ModifierGroupID: priorGroupID, DisplayOrder: 9},
		},
	}

	data := &models.ParsedImportData{
		ModifierGroups: []models.ParsedModifierGroup{{GroupKey: "milk", Name: "Milk"}},
		Modifiers:      []models.ParsedModifier{{GroupKey: "milk", ModifierKey: "oat", Name: "Oat"}},
		ItemModifierOverrides: []models.ParsedItemModifierOverride{
			{ItemName: "Latte", GroupKey: "milk", ModifierKey: "oat", DisplayOrder: 2},
		},
	}
	_, err := SaveAll(store, testTenant, testCatalog, data)
	assert.NoError(t, err)

	item := store.items[itemID]
	if assert.Len(t, item.ModifierGroups, 2) {
		// The assignment this import did not mention survives.
		assert.Equal(t, priorGroupID, item.ModifierGroups[0].ModifierGroupID)
		assert.Equal(t, 9, item.ModifierGroups[0].DisplayOrder)
		assert.Equal(t, 2, item.ModifierGroups[1].DisplayOrder)
	}
}

func TestSaveAllOverrideTargetsExistingItem(t *testing.T) {
	// Overrides may customize items that are not part of the upload at all.
	store := newFakeStore()

	categoryID := uuid.New()
	itemID := uuid.New()
	groupID := uuid.New()
	modifierID := uuid.New()
	store.categories[categoryID] = models.Category{
		ID: categoryID, TenantID: testTenant, CatalogID: testCatalog, Name: "Drinks",
	}
	store.items[itemID] = models.Item{
		ID: itemID, TenantID: testTenant, CatalogID: testCatalog,
		CategoryID: categoryID, Name: "Latte",
	}
	store.groups[groupID] = models.ModifierGroup{
		ID: groupID, TenantID: testTenant, CatalogID: testCatalog, GroupKey: "milk", Name: "Milk",
	}
	store.modifiers[modifierID] = models.Modifier{
		ID: modifierID, TenantID: testTenant, CatalogID: testCatalog,
		GroupID: groupID, ModifierKey: "oat", Name: "Oat",
	}

	price := 0.25
	data := &models.ParsedImportData{
		ItemModifierOverrides: []models.ParsedItemModifierOverride{
			{ItemName: "Latte", GroupKey: "milk", ModifierKey: "oat", Price: &price},
		},
	}
	log, err := SaveAll(store, testTenant, testCatalog, data)
	assert.NoError(t, err)

	item := store.items[itemID]
	if assert.Len(t, item.ModifierGroups, 1) {
		overrides := item.ModifierGroups[0].ModifierOverrides
		if assert.Len(t, overrides, 1) {
			assert.Equal(t, modifierID.String(), overrides[0].ModifierID)
			if assert.NotNil(t, overrides[0].Price) {
				assert.Equal(t, 0.25, *overrides[0].Price)
			}
		}
	}

	// The untouched item got a pre-image snapshot for rollback.
	if assert.Len(t, log, 1) {
		assert.Equal(t, models.RollbackActionUpdate, log[0].Action)
		assert.Equal(t, entityItem, log[0].EntityType)
	}
}

func TestSaveAllDefaultSizeForExistingItemOutsideUpload(t *testing.T) {
	// A default-marked size row may target an item that lives only in the
	// catalog, not in the upload.
	store := newFakeStore()

	categoryID := uuid.New()
	itemID := uuid.New()
	store.categories[categoryID] = models.Category{
		ID: categoryID, TenantID: testTenant, CatalogID: testCatalog, Name: "Drinks",
	}
	store.items[itemID] = models.Item{
		ID: itemID, TenantID: testTenant, CatalogID: testCatalog,
		CategoryID: categoryID, Name: "Latte", IsSizeable: true,
	}

	data := &models.ParsedImportData{
		ItemSizes: []models.ParsedItemSize{
			{SizeCode: "S", Name: "Small", ItemName: "Latte"},
			{SizeCode: "M", Name: "Medium", ItemName: "Latte", IsDefault: true},
		},
	}
	log, err := SaveAll(store, testTenant, testCatalog, data)
	assert.NoError(t, err)

	var sizeM uuid.UUID
	for id, s := range store.sizes {
		if s.SizeCode == "M" {
			sizeM = id
		}
	}

	item := store.items[itemID]
	if assert.NotNil(t, item.DefaultSizeID) {
		assert.Equal(t, sizeM, *item.DefaultSizeID)
	}

	// Two size creates plus the pre-image snapshot of the linked item.
	if assert.Len(t, log, 3) {
		assert.Equal(t, models.RollbackActionUpdate, log[2].Action)
		assert.Equal(t, entityItem, log[2].EntityType)
	}
}
