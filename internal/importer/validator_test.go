package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"catalog-service/internal/models"
)

func rowAt(file string, row int) models.RowSource {
	return models.RowSource{SourceFile: file, Row: row}
}

// issueFields collects "entityType/field" pairs for compact assertions.
func issueFields(issues models.ValidationIssueList) []string {
	var out []string
	for _, i := range issues {
		out = append(out, string(i.EntityType)+"/"+i.Field)
	}
	return out
}

func TestValidateCleanUpload(t *testing.T) {
	data := &models.ParsedImportData{
		Categories: []models.ParsedCategory{
			{RowSource: rowAt("categories.csv", 2), Name: "Drinks"},
		},
		Items: []models.ParsedItem{
			{RowSource: rowAt("items.csv", 2), Name: "Latte", CategoryName: "Drinks", IsSizeable: true, DefaultSizeCode: "M"},
			{RowSource: rowAt("items.csv", 3), Name: "Muffin", CategoryName: "Drinks", BasePrice: 3.25, BasePriceRaw: "3.25"},
		},
		ItemSizes: []models.ParsedItemSize{
			{RowSource: rowAt("sizes.csv", 2), SizeCode: "S", ItemName: "Latte"},
			{RowSource: rowAt("sizes.csv", 3), SizeCode: "M", ItemName: "Latte", IsDefault: true},
		},
		ModifierGroups: []models.ParsedModifierGroup{
			{RowSource: rowAt("groups.csv", 2), GroupKey: "milk", Name: "Milk", MaxSelect: 1},
		},
		Modifiers: []models.ParsedModifier{
			{RowSource: rowAt("modifiers.csv", 2), GroupKey: "milk", ModifierKey: "oat", Name: "Oat Milk"},
		},
		ItemModifierOverrides: []models.ParsedItemModifierOverride{
			{RowSource: rowAt("overrides.csv", 2), ItemName: "Latte", GroupKey: "milk", ModifierKey: "oat"},
		},
	}

	errs, warns := Validate(data, NewCatalogContext())
	assert.Empty(t, errs, "%v", issueFields(errs))
	assert.Empty(t, warns, "%v", issueFields(warns))
}

func TestValidateRequiredFields(t *testing.T) {
	data := &models.ParsedImportData{
		Categories:     []models.ParsedCategory{{Name: "  "}},
		Items:          []models.ParsedItem{{Name: ""}},
		ModifierGroups: []models.ParsedModifierGroup{{Name: ""}},
		Modifiers:      []models.ParsedModifier{{Name: "Oat"}},
		ItemSizes:      []models.ParsedItemSize{{SizeCode: ""}},
	}

	errs, _ := Validate(data, nil)
	assert.ElementsMatch(t, []string{
		"CATEGORY/name",
		"ITEM/name",
		"MOD_GROUP/name",
		"MODIFIER/group_key",
		"SIZE/size_code",
	}, issueFields(errs))
}

func TestValidateDuplicatesAreCaseInsensitive(t *testing.T) {
	data := &models.ParsedImportData{
		Categories: []models.ParsedCategory{
			{Name: "Drinks"},
			{Name: "DRINKS "},
		},
		ModifierGroups: []models.ParsedModifierGroup{
			{GroupKey: "milk", Name: "Milk"},
			{GroupKey: "Milk", Name: "Milk Again"},
		},
		Modifiers: []models.ParsedModifier{
			{GroupKey: "milk", ModifierKey: "oat", Name: "Oat"},
			{GroupKey: "MILK", ModifierKey: "OAT", Name: "Oat Again"},
		},
	}

	errs, _ := Validate(data, nil)
	assert.ElementsMatch(t, []string{
		"CATEGORY/name",
		"MOD_GROUP/group_key",
		"MODIFIER/modifier_key",
	}, issueFields(errs))
}

func TestValidateDuplicateItemsScopedByCategory(t *testing.T) {
	data := &models.ParsedImportData{
		Categories: []models.ParsedCategory{{Name: "Drinks"}, {Name: "Food"}},
		Items: []models.ParsedItem{
			{Name: "Special", CategoryName: "Drinks", BasePrice: 1},
			{Name: "Special", CategoryName: "Food", BasePrice: 1},
			{Name: "special", CategoryName: "drinks", BasePrice: 1},
		},
	}

	errs, _ := Validate(data, nil)
	// Same name in a different category is fine; same category is not.
	assert.Equal(t, []string{"ITEM/name"}, issueFields(errs))
}

func TestValidateReferencesResolveAgainstExistingCatalog(t *testing.T) {
	ctx := NewCatalogContext()
	ctx.CategoryNames["drinks"] = true
	ctx.GroupKeys["milk"] = true
	ctx.ModifierKeys["milk|oat"] = true
	ctx.ItemKeys["latte|drinks"] = true
	ctx.ItemNames["latte"] = true
	ctx.SizeCodes["m"] = true

	data := &models.ParsedImportData{
		Items: []models.ParsedItem{
			{Name: "Mocha", CategoryName: "Drinks", IsSizeable: true},
		},
		Modifiers: []models.ParsedModifier{
			{GroupKey: "milk", ModifierKey: "soy", Name: "Soy"},
		},
		ItemSizes: []models.ParsedItemSize{
			{SizeCode: "XL", ItemName: "Latte"},
		},
		ItemModifierOverrides: []models.ParsedItemModifierOverride{
			{ItemName: "Latte", GroupKey: "milk", ModifierKey: "oat"},
		},
	}

	errs, _ := Validate(data, ctx)
	assert.Empty(t, errs, "%v", issueFields(errs))
}

func TestValidateUnresolvedReferences(t *testing.T) {
	data := &models.ParsedImportData{
		Items: []models.ParsedItem{
			{RowSource: rowAt("items.csv", 4), Name: "Latte", CategoryName: "Nope", BasePrice: 4},
		},
		Modifiers: []models.ParsedModifier{
			{Name: "Oat", GroupKey: "ghost"},
		},
		ItemSizes: []models.ParsedItemSize{
			{SizeCode: "S", ItemName: "Phantom"},
		},
		ItemModifierOverrides: []models.ParsedItemModifierOverride{
			{ItemName: "Phantom", GroupKey: "ghost", ModifierKey: "oat"},
		},
	}

	errs, _ := Validate(data, NewCatalogContext())
	assert.ElementsMatch(t, []string{
		"ITEM/category_name",
		"MODIFIER/group_key",
		"SIZE/item_name",
		"ITEM_MOD_OVERRIDE/item_name",
		"ITEM_MOD_OVERRIDE/group_key",
	}, issueFields(errs))

	// Issues carry the originating file and row.
	for _, e := range errs {
		if e.EntityType == models.KindItem {
			assert.Equal(t, "items.csv", e.File)
			assert.Equal(t, 4, e.Row)
		}
	}
}

func TestValidateItemCategoryByIDSkipsNameLookup(t *testing.T) {
	data := &models.ParsedImportData{
		Items: []models.ParsedItem{
			{Name: "Latte", CategoryID: "6a5ec0b2-0c6f-4c6e-b0cd-000000000001", BasePrice: 4},
		},
	}

	errs, _ := Validate(data, NewCatalogContext())
	// ID references are resolved at commit time, not here.
	assert.Empty(t, errs, "%v", issueFields(errs))
}

func TestValidateNonSizeableItemNeedsBasePrice(t *testing.T) {
	data := &models.ParsedImportData{
		Categories: []models.ParsedCategory{{Name: "Food"}},
		Items: []models.ParsedItem{
			{Name: "Muffin", CategoryName: "Food", BasePrice: 0},
		},
	}

	errs, _ := Validate(data, nil)
	assert.Equal(t, []string{"ITEM/base_price"}, issueFields(errs))
}

func TestValidateSizeableItemNeedsSizes(t *testing.T) {
	data := &models.ParsedImportData{
		Categories: []models.ParsedCategory{{Name: "Drinks"}},
		Items: []models.ParsedItem{
			{Name: "Latte", CategoryName: "Drinks", IsSizeable: true},
		},
	}

	errs, _ := Validate(data, NewCatalogContext())
	assert.Equal(t, []string{"ITEM/is_sizeable"}, issueFields(errs))

	// Sizes already in the catalog satisfy the requirement.
	ctx := NewCatalogContext()
	ctx.SizeCodes["m"] = true
	errs, _ = Validate(data, ctx)
	assert.Empty(t, errs, "%v", issueFields(errs))
}

func TestValidateDefaultSizeRules(t *testing.T) {
	base := func() *models.ParsedImportData {
		return &models.ParsedImportData{
			Categories: []models.ParsedCategory{{Name: "Drinks"}},
			Items: []models.ParsedItem{
				{Name: "Latte", CategoryName: "Drinks", IsSizeable: true},
			},
		}
	}

	// Unknown default size code is an error.
	data := base()
	data.Items[0].DefaultSizeCode = "XL"
	data.ItemSizes = []models.ParsedItemSize{
		{SizeCode: "S", ItemName: "Latte", IsDefault: true},
	}
	errs, _ := Validate(data, nil)
	assert.Equal(t, []string{"ITEM/default_size"}, issueFields(errs))

	// More than one default-flagged size is an error.
	data = base()
	data.ItemSizes = []models.ParsedItemSize{
		{SizeCode: "S", ItemName: "Latte", IsDefault: true},
		{SizeCode: "M", ItemName: "Latte", IsDefault: true},
	}
	errs, _ = Validate(data, nil)
	assert.Equal(t, []string{"ITEM/is_default"}, issueFields(errs))

	// No default at all is only a warning.
	data = base()
	data.ItemSizes = []models.ParsedItemSize{
		{SizeCode: "S", ItemName: "Latte"},
	}
	errs, warns := Validate(data, nil)
	assert.Empty(t, errs, "%v", issueFields(errs))
	assert.Equal(t, []string{"ITEM/is_default"}, issueFields(warns))
}

func TestValidateDuplicateSizeScopedPerItem(t *testing.T) {
	data := &models.ParsedImportData{
		Categories: []models.ParsedCategory{{Name: "Drinks"}},
		Items: []models.ParsedItem{
			{Name: "Latte", CategoryName: "Drinks", IsSizeable: true},
			{Name: "Mocha", CategoryName: "Drinks", IsSizeable: true},
		},
		ItemSizes: []models.ParsedItemSize{
			{SizeCode: "S", ItemName: "Latte", IsDefault: true},
			{SizeCode: "S", ItemName: "Mocha", IsDefault: true},
			{SizeCode: "s", ItemName: "Latte"},
		},
	}

	errs, _ := Validate(data, nil)
	assert.Equal(t, []string{"SIZE/size_code"}, issueFields(errs))
}

func TestValidateCoercedNumbersWarn(t *testing.T) {
	data := &models.ParsedImportData{
		Categories: []models.ParsedCategory{{Name: "Drinks"}},
		Items: []models.ParsedItem{
			{Name: "Latte", CategoryName: "Drinks", BasePrice: 4, BasePriceRaw: "$4.00"},
		},
		ModifierGroups: []models.ParsedModifierGroup{
			{GroupKey: "milk", Name: "Milk"},
		},
		Modifiers: []models.ParsedModifier{
			{GroupKey: "milk", ModifierKey: "oat", Name: "Oat", PriceRaw: "free"},
		},
	}

	errs, warns := Validate(data, nil)
	assert.Empty(t, errs, "%v", issueFields(errs))
	assert.ElementsMatch(t, []string{"ITEM/base_price", "MODIFIER/price"}, issueFields(warns))
}

func TestValidateMaxSelectExceedsModifiersWarns(t *testing.T) {
	data := &models.ParsedImportData{
		ModifierGroups: []models.ParsedModifierGroup{
			{GroupKey: "milk", Name: "Milk", MaxSelect: 5},
		},
		Modifiers: []models.ParsedModifier{
			{GroupKey: "milk", ModifierKey: "oat", Name: "Oat"},
		},
	}

	errs, warns := Validate(data, nil)
	assert.Empty(t, errs, "%v", issueFields(errs))
	assert.Equal(t, []string{"MOD_GROUP/max_select"}, issueFields(warns))
}
