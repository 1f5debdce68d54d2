package importer

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xuri/excelize/v2"

	"catalog-service/internal/models"
)

func TestParseUploadTypedCSV(t *testing.T) {
	csvData := []byte(`type,name,description,category,base_price,is_sizeable,default_size,size_code,item_name,group_key,modifier_key,price,display_type,min_select,max_select,max_quantity,is_default,sort_order,active,prices_by_size
category,Drinks,Hot and cold drinks,,,,,,,,,,,,,,,1,true,
item,Latte,,Drinks,4.50,true,M,,,,,,,,,,,2,true,
size,Medium,,,,,,M,Latte,,,,,,,,true,1,,
mod_group,Milk,,,,,,,,milk,,,RADIO,0,1,,,3,,S:0.50;M:0.75
modifier,Oat Milk,,,,,,,,milk,oat,0.60,,,,2,,1,,
override,,,,,,,,Latte,milk,oat,0,,,,2,,5,,
`)

	parsed, files, err := ParseUpload("menu_upload.csv", csvData, "")
	assert.NoError(t, err)
	assert.Equal(t, []string{"menu_upload.csv"}, files)

	assert.Len(t, parsed.Categories, 1)
	assert.Len(t, parsed.Items, 1)
	assert.Len(t, parsed.ItemSizes, 1)
	assert.Len(t, parsed.ModifierGroups, 1)
	assert.Len(t, parsed.Modifiers, 1)
	assert.Len(t, parsed.ItemModifierOverrides, 1)

	cat := parsed.Categories[0]
	assert.Equal(t, "Drinks", cat.Name)
	assert.Equal(t, "Hot and cold drinks", cat.Description)
	assert.Equal(t, 1, cat.SortOrder)
	assert.True(t, cat.IsActive)
	assert.Equal(t, "menu_upload.csv", cat.SourceFile)
	assert.Equal(t, 2, cat.Row)

	item := parsed.Items[0]
	assert.Equal(t, "Latte", item.Name)
	assert.Equal(t, "Drinks", item.CategoryName)
	assert.Equal(t, 4.50, item.BasePrice)
	assert.Equal(t, "4.50", item.BasePriceRaw)
	assert.True(t, item.IsSizeable)
	assert.Equal(t, "M", item.DefaultSizeCode)
	assert.Equal(t, 3, item.Row)

	size := parsed.ItemSizes[0]
	assert.Equal(t, "M", size.SizeCode)
	assert.Equal(t, "Medium", size.Name)
	assert.Equal(t, "Latte", size.ItemName)
	assert.True(t, size.IsDefault)

	group := parsed.ModifierGroups[0]
	assert.Equal(t, "milk", group.GroupKey)
	assert.Equal(t, "Milk", group.Name)
	assert.Equal(t, "RADIO", group.DisplayType)
	assert.Equal(t, 1, group.MaxSelect)
	assert.Equal(t, map[string]float64{"S": 0.50, "M": 0.75}, group.PricesBySize)

	mod := parsed.Modifiers[0]
	assert.Equal(t, "milk", mod.GroupKey)
	assert.Equal(t, "oat", mod.ModifierKey)
	assert.Equal(t, "Oat Milk", mod.Name)
	assert.Equal(t, 0.60, mod.Price)
	assert.Equal(t, 2, mod.MaxQuantity)

	override := parsed.ItemModifierOverrides[0]
	assert.Equal(t, "Latte", override.ItemName)
	assert.Equal(t, "milk", override.GroupKey)
	assert.Equal(t, "oat", override.ModifierKey)
	if assert.NotNil(t, override.Price) {
		assert.Equal(t, 0.0, *override.Price)
	}
	assert.Nil(t, override.IsDefault)
	if assert.NotNil(t, override.MaxQuantity) {
		assert.Equal(t, 2, *override.MaxQuantity)
	}
	assert.Equal(t, 5, override.DisplayOrder)
	assert.Equal(t, 7, override.Row)
}

func TestParseUploadHeuristicClassification(t *testing.T) {
	// The filename carries no kind hint and there is no type column, so
	// every row goes through the classifier chain.
	csvData := []byte(`name,size_code,group_key,group,display_type,modifier_key,max_quantity,description
Small,S,milk,,RADIO,,,
Milk,,milk,,RADIO,,,
Oat,,milk,,,oat,,
Extra Shot,,,espresso,,,3,
Latte,,,,,,,
Toppings,,,toppings,,,,
,,,,,,,Just a note
`)

	parsed, _, err := ParseUpload("upload.csv", csvData, "")
	assert.NoError(t, err)

	// A size code outranks the group columns on the first row.
	assert.Len(t, parsed.ItemSizes, 1)
	assert.Equal(t, "S", parsed.ItemSizes[0].SizeCode)

	assert.Len(t, parsed.ModifierGroups, 2)
	assert.Equal(t, "Milk", parsed.ModifierGroups[0].Name)
	assert.Equal(t, "Toppings", parsed.ModifierGroups[1].Name)

	assert.Len(t, parsed.Modifiers, 2)
	assert.Equal(t, "oat", parsed.Modifiers[0].ModifierKey)
	assert.Equal(t, "Extra Shot", parsed.Modifiers[1].Name)
	assert.Equal(t, "espresso", parsed.Modifiers[1].GroupKey)
	assert.Equal(t, 3, parsed.Modifiers[1].MaxQuantity)

	assert.Len(t, parsed.Items, 1)
	assert.Equal(t, "Latte", parsed.Items[0].Name)

	// Rows matching nothing fall through to category.
	assert.Len(t, parsed.Categories, 1)
	assert.Equal(t, "Just a note", parsed.Categories[0].Description)
}

func TestParseUploadFilenameHint(t *testing.T) {
	csvData := []byte(`name,description
Drinks,All drinks
Food,All food
`)

	parsed, _, err := ParseUpload("categories.csv", csvData, "")
	assert.NoError(t, err)
	assert.Len(t, parsed.Categories, 2)
	assert.Empty(t, parsed.Items)
}

func TestParseUploadCallerHintOverridesHeuristics(t *testing.T) {
	// Bare name rows would classify as items; the caller hint pins them.
	csvData := []byte("name\nDrinks\nFood\n")

	parsed, _, err := ParseUpload("upload.csv", csvData, models.KindCategory)
	assert.NoError(t, err)
	assert.Len(t, parsed.Categories, 2)
	assert.Empty(t, parsed.Items)
}

func TestParseUploadTypeCellWinsOverHint(t *testing.T) {
	csvData := []byte(`type,name
,Drinks
item,Latte
`)

	parsed, _, err := ParseUpload("categories.csv", csvData, "")
	assert.NoError(t, err)
	assert.Len(t, parsed.Categories, 1)
	assert.Equal(t, "Drinks", parsed.Categories[0].Name)
	assert.Len(t, parsed.Items, 1)
	assert.Equal(t, "Latte", parsed.Items[0].Name)
}

func TestKindFromFilename(t *testing.T) {
	cases := map[string]models.EntityKind{
		"categories.csv":          models.KindCategory,
		"menu_items.xlsx":         models.KindItem,
		"products.csv":            models.KindItem,
		"item_sizes.csv":          models.KindItemSize,
		"modifier_groups.csv":     models.KindModifierGroup,
		"modifiers.csv":           models.KindModifier,
		"item_mod_overrides.csv":  models.KindItemModifierOverride,
		"exports/categories.xlsx": models.KindCategory,
	}
	for name, want := range cases {
		got, ok := kindFromFilename(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	_, ok := kindFromFilename("upload.csv")
	assert.False(t, ok)
}

func TestParseUploadZipArchive(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	entries := map[string]string{
		"categories.csv":            "name\nDrinks\n",
		"items.csv":                 "name,category,base_price\nLatte,Drinks,4.50\n",
		"notes.txt":                 "not tabular",
		"__MACOSX/._categories.csv": "resource fork junk",
	}
	for name, content := range entries {
		f, err := w.Create(name)
		assert.NoError(t, err)
		_, err = f.Write([]byte(content))
		assert.NoError(t, err)
	}
	assert.NoError(t, w.Close())

	parsed, files, err := ParseUpload("bundle.zip", buf.Bytes(), "")
	assert.NoError(t, err)

	assert.Len(t, parsed.Categories, 1)
	assert.Len(t, parsed.Items, 1)
	assert.ElementsMatch(t, []string{"categories.csv", "items.csv"}, files)

	// Issue locations point at the archive member, not the archive.
	assert.Equal(t, "items.csv", parsed.Items[0].SourceFile)
	assert.Equal(t, 2, parsed.Items[0].Row)
}

func TestParseUploadXLSX(t *testing.T) {
	f := excelize.NewFile()
	assert.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"name", "category", "base_price"}))
	assert.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"Latte", "Drinks", 4.5}))
	buf, err := f.WriteToBuffer()
	assert.NoError(t, err)

	parsed, files, err := ParseUpload("items.xlsx", buf.Bytes(), "")
	assert.NoError(t, err)
	assert.Equal(t, []string{"items.xlsx"}, files)
	assert.Len(t, parsed.Items, 1)
	assert.Equal(t, "Latte", parsed.Items[0].Name)
	assert.Equal(t, 4.5, parsed.Items[0].BasePrice)
	assert.Equal(t, 2, parsed.Items[0].Row)
}

func TestParseUploadErrors(t *testing.T) {
	_, _, err := ParseUpload("empty.csv", nil, "")
	assert.ErrorIs(t, err, ErrMalformedFile)

	_, _, err = ParseUpload("broken.zip", []byte("not a zip"), "")
	assert.ErrorIs(t, err, ErrMalformedFile)

	_, _, err = ParseUpload("menu.pdf", []byte("%PDF-1.4"), "")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, _, err = ParseUpload("bad.xlsx", []byte("garbage"), "")
	assert.ErrorIs(t, err, ErrMalformedFile)
}

func TestParseUploadLossyCoercion(t *testing.T) {
	csvData := []byte(`name,category,base_price,is_sizeable,active
Latte,Drinks,abc,TRUE,
`)

	parsed, _, err := ParseUpload("items.csv", csvData, "")
	assert.NoError(t, err)
	assert.Len(t, parsed.Items, 1)

	item := parsed.Items[0]
	// Malformed prices degrade to 0 but the raw cell survives for the
	// validator's warning pass.
	assert.Equal(t, 0.0, item.BasePrice)
	assert.Equal(t, "abc", item.BasePriceRaw)
	// Boolean coercion is exact: "TRUE" is not "true".
	assert.False(t, item.IsSizeable)
	// An empty cell in a present column is an explicit false.
	assert.False(t, item.IsActive)
}

func TestParseUploadActiveDefaultsWhenColumnAbsent(t *testing.T) {
	csvData := []byte("name,category,base_price\nLatte,Drinks,4.50\n")

	parsed, _, err := ParseUpload("items.csv", csvData, "")
	assert.NoError(t, err)
	assert.Len(t, parsed.Items, 1)
	assert.True(t, parsed.Items[0].IsActive)
}

func TestParsePricesBySize(t *testing.T) {
	assert.Nil(t, parsePricesBySize(""))
	assert.Nil(t, parsePricesBySize("garbage"))
	assert.Equal(t, map[string]float64{"S": 1, "M": 1.5}, parsePricesBySize("S:1.00;M:1.50"))
	assert.Equal(t, map[string]float64{"S": 1}, parsePricesBySize("S:1.00,M:notaprice"))
	assert.Equal(t, map[string]float64{"S": 1}, parsePricesBySize(" S : 1.00 "))
}

func TestParseBoolCell(t *testing.T) {
	assert.True(t, parseBoolCell("true"))
	assert.True(t, parseBoolCell("1"))
	assert.True(t, parseBoolCell("yes"))
	assert.False(t, parseBoolCell("TRUE"))
	assert.False(t, parseBoolCell("y"))
	assert.False(t, parseBoolCell(""))
}

func TestParseIntCell(t *testing.T) {
	assert.Equal(t, 3, parseIntCell("3"))
	assert.Equal(t, 3, parseIntCell("3.0"))
	assert.Equal(t, 0, parseIntCell("three"))
	assert.Equal(t, 0, parseIntCell(""))
}
