package importer

import (
	"fmt"
	"strconv"
	"strings"

	"catalog-service/internal/models"
)

// CatalogContext carries the pre-fetched natural keys of the target catalog
// so validation can resolve references against live entities without doing
// any I/O itself. All keys are lowercased; natural-key matching is
// case-insensitive throughout the pipeline.
type CatalogContext struct {
	CategoryNames map[string]bool // category name
	ItemKeys      map[string]bool // item name + "|" + category name
	ItemNames     map[string]bool // item name (for references that omit the category)
	SizeCodes     map[string]bool // size code
	GroupKeys     map[string]bool // modifier group key
	ModifierKeys  map[string]bool // group key + "|" + modifier key
}

// NewCatalogContext returns an empty context (no existing entities)
func NewCatalogContext() *CatalogContext {
	return &CatalogContext{
		CategoryNames: make(map[string]bool),
		ItemKeys:      make(map[string]bool),
		ItemNames:     make(map[string]bool),
		SizeCodes:     make(map[string]bool),
		GroupKeys:     make(map[string]bool),
		ModifierKeys:  make(map[string]bool),
	}
}

func normKey(parts ...string) string {
	for i := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, "|")
}

// Validate checks the staged data against per-field, uniqueness, referential
// and conditional business rules. It is a pure function: it never mutates
// its input and never talks to a store. Errors block confirmation; warnings
// are informational only.
func Validate(data *models.ParsedImportData, ctx *CatalogContext) (errors, warnings models.ValidationIssueList) {
	if ctx == nil {
		ctx = NewCatalogContext()
	}
	v := &validation{data: data, ctx: ctx}
	v.validateCategories()
	v.validateModifierGroups()
	v.validateModifiers()
	v.validateItemSizes()
	v.validateItems()
	v.validateOverrides()
	return v.errors, v.warnings
}

type validation struct {
	data     *models.ParsedImportData
	ctx      *CatalogContext
	errors   models.ValidationIssueList
	warnings models.ValidationIssueList
}

func (v *validation) addError(src models.RowSource, kind models.EntityKind, field, message, value string) {
	v.errors = append(v.errors, models.ValidationIssue{
		File: src.SourceFile, Row: src.Row, EntityType: kind,
		Field: field, Message: message, Value: value,
	})
}

func (v *validation) addWarning(src models.RowSource, kind models.EntityKind, field, message, value string) {
	v.warnings = append(v.warnings, models.ValidationIssue{
		File: src.SourceFile, Row: src.Row, EntityType: kind,
		Field: field, Message: message, Value: value,
	})
}

// coercedToZero reports whether a raw numeric cell was non-empty but
// unparseable, meaning the parser silently degraded it to 0.
func coercedToZero(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	_, err := strconv.ParseFloat(raw, 64)
	return err != nil
}

func (v *validation) validateCategories() {
	seen := make(map[string]bool)
	for _, c := range v.data.Categories {
		if strings.TrimSpace(c.Name) == "" {
			v.addError(c.RowSource, models.KindCategory, "name", "category name is required", c.Name)
			continue
		}
		key := normKey(c.Name)
		if seen[key] {
			v.addError(c.RowSource, models.KindCategory, "name",
				fmt.Sprintf("duplicate category name %q in upload", c.Name), c.Name)
			continue
		}
		seen[key] = true
	}
}

func (v *validation) validateModifierGroups() {
	seen := make(map[string]bool)
	modifierCounts := make(map[string]int)
	for _, m := range v.data.Modifiers {
		modifierCounts[normKey(m.GroupKey)]++
	}

	for _, g := range v.data.ModifierGroups {
		if strings.TrimSpace(g.Name) == "" {
			v.addError(g.RowSource, models.KindModifierGroup, "name", "modifier group name is required", g.Name)
			continue
		}
		key := normKey(g.Key())
		if seen[key] {
			v.addError(g.RowSource, models.KindModifierGroup, "group_key",
				fmt.Sprintf("duplicate modifier group key %q in upload", g.Key()), g.Key())
			continue
		}
		seen[key] = true

		if g.MaxSelect > 0 && g.MaxSelect > modifierCounts[key] {
			v.addWarning(g.RowSource, models.KindModifierGroup, "max_select",
				fmt.Sprintf("max_select %d exceeds the %d modifiers defined for group %q; the group may be populated later",
					g.MaxSelect, modifierCounts[key], g.Key()),
				strconv.Itoa(g.MaxSelect))
		}
	}
}

func (v *validation) uploadGroupKeys() map[string]bool {
	keys := make(map[string]bool, len(v.data.ModifierGroups))
	for _, g := range v.data.ModifierGroups {
		keys[normKey(g.Key())] = true
	}
	return keys
}

// groupResolvable reports whether a group key matches a modifier group in
// the upload or in the existing catalog
func (v *validation) groupResolvable(key string) bool {
	return v.uploadGroupKeys()[normKey(key)] || v.ctx.GroupKeys[normKey(key)]
}

func (v *validation) validateModifiers() {
	seen := make(map[string]bool)

	for _, m := range v.data.Modifiers {
		if strings.TrimSpace(m.Name) == "" {
			v.addError(m.RowSource, models.KindModifier, "name", "modifier name is required", m.Name)
			continue
		}
		if strings.TrimSpace(m.GroupKey) == "" {
			v.addError(m.RowSource, models.KindModifier, "group_key", "modifier must reference a modifier group", m.GroupKey)
			continue
		}
		if !v.groupResolvable(m.GroupKey) {
			v.addError(m.RowSource, models.KindModifier, "group_key",
				fmt.Sprintf("modifier %q references unknown modifier group %q", m.Name, m.GroupKey), m.GroupKey)
			continue
		}

		key := normKey(m.GroupKey, m.Key())
		if seen[key] {
			v.addError(m.RowSource, models.KindModifier, "modifier_key",
				fmt.Sprintf("duplicate modifier key %q in group %q", m.Key(), m.GroupKey), m.Key())
			continue
		}
		seen[key] = true

		if coercedToZero(m.PriceRaw) {
			v.addWarning(m.RowSource, models.KindModifier, "price",
				fmt.Sprintf("price %q could not be parsed and defaulted to 0", m.PriceRaw), m.PriceRaw)
		}
	}
}

// itemResolvable reports whether an item reference (name, optional category
// name) matches an item in the upload or in the existing catalog
func (v *validation) itemResolvable(name, categoryName string) bool {
	if categoryName != "" {
		key := normKey(name, categoryName)
		for _, i := range v.data.Items {
			if normKey(i.Name, i.CategoryName) == key {
				return true
			}
		}
		return v.ctx.ItemKeys[key]
	}
	nameKey := normKey(name)
	for _, i := range v.data.Items {
		if normKey(i.Name) == nameKey {
			return true
		}
	}
	return v.ctx.ItemNames[nameKey]
}

func (v *validation) validateItemSizes() {
	seen := make(map[string]bool)
	for _, s := range v.data.ItemSizes {
		if strings.TrimSpace(s.SizeCode) == "" {
			v.addError(s.RowSource, models.KindItemSize, "size_code", "size code is required", s.SizeCode)
			continue
		}

		// Scope is the owning item's composite key, or blank for global sizes.
		scope := ""
		if s.ItemName != "" {
			scope = normKey(s.ItemName, s.ItemCategoryName)
		}
		key := scope + "\x00" + normKey(s.SizeCode)
		if seen[key] {
			v.addError(s.RowSource, models.KindItemSize, "size_code",
				fmt.Sprintf("duplicate size code %q in its item scope", s.SizeCode), s.SizeCode)
			continue
		}
		seen[key] = true

		if s.ItemName != "" && !v.itemResolvable(s.ItemName, s.ItemCategoryName) {
			v.addError(s.RowSource, models.KindItemSize, "item_name",
				fmt.Sprintf("size %q references unknown item %q", s.SizeCode, s.ItemName), s.ItemName)
		}
	}
}

// sizesForItem returns the upload size rows scoped to the given item
func (v *validation) sizesForItem(item models.ParsedItem) []models.ParsedItemSize {
	var scoped []models.ParsedItemSize
	nameKey := normKey(item.Name)
	compositeKey := normKey(item.Name, item.CategoryName)
	for _, s := range v.data.ItemSizes {
		if s.ItemName == "" {
			continue
		}
		if s.ItemCategoryName != "" {
			if normKey(s.ItemName, s.ItemCategoryName) == compositeKey {
				scoped = append(scoped, s)
			}
		} else if normKey(s.ItemName) == nameKey {
			scoped = append(scoped, s)
		}
	}
	return scoped
}

func (v *validation) globalUploadSizes() []models.ParsedItemSize {
	var global []models.ParsedItemSize
	for _, s := range v.data.ItemSizes {
		if s.ItemName == "" {
			global = append(global, s)
		}
	}
	return global
}

func (v *validation) validateItems() {
	uploadCategories := make(map[string]bool, len(v.data.Categories))
	for _, c := range v.data.Categories {
		uploadCategories[normKey(c.Name)] = true
	}
	globalSizes := v.globalUploadSizes()
	seen := make(map[string]bool)

	for _, i := range v.data.Items {
		if strings.TrimSpace(i.Name) == "" {
			v.addError(i.RowSource, models.KindItem, "name", "item name is required", i.Name)
			continue
		}

		if i.CategoryID == "" && i.CategoryName == "" {
			v.addError(i.RowSource, models.KindItem, "category_name",
				"item must reference a category by name or id", "")
		} else if i.CategoryID == "" {
			categoryKey := normKey(i.CategoryName)
			if !uploadCategories[categoryKey] && !v.ctx.CategoryNames[categoryKey] {
				v.addError(i.RowSource, models.KindItem, "category_name",
					fmt.Sprintf("item %q references unknown category %q", i.Name, i.CategoryName), i.CategoryName)
			}
		}

		key := normKey(i.Name, i.CategoryName)
		if seen[key] {
			v.addError(i.RowSource, models.KindItem, "name",
				fmt.Sprintf("duplicate item %q in category %q in upload", i.Name, i.CategoryName), i.Name)
			continue
		}
		seen[key] = true

		if coercedToZero(i.BasePriceRaw) {
			v.addWarning(i.RowSource, models.KindItem, "base_price",
				fmt.Sprintf("base price %q could not be parsed and defaulted to 0", i.BasePriceRaw), i.BasePriceRaw)
		}

		scoped := v.sizesForItem(i)

		if !i.IsSizeable {
			if i.BasePrice == 0 {
				v.addError(i.RowSource, models.KindItem, "base_price",
					fmt.Sprintf("non-sizeable item %q must supply a base price", i.Name), i.BasePriceRaw)
			}
			continue
		}

		if len(scoped) == 0 && len(globalSizes) == 0 && len(v.ctx.SizeCodes) == 0 {
			v.addError(i.RowSource, models.KindItem, "is_sizeable",
				fmt.Sprintf("sizeable item %q has no size rows", i.Name), "")
		}

		if i.DefaultSizeCode != "" && !v.sizeCodeResolvable(i.DefaultSizeCode, scoped, globalSizes) {
			v.addError(i.RowSource, models.KindItem, "default_size",
				fmt.Sprintf("item %q names default size %q which does not exist among its sizes", i.Name, i.DefaultSizeCode), i.DefaultSizeCode)
		}

		defaults := 0
		for _, s := range scoped {
			if s.IsDefault {
				defaults++
			}
		}
		if defaults > 1 {
			v.addError(i.RowSource, models.KindItem, "is_default",
				fmt.Sprintf("item %q has %d sizes marked default; exactly one is allowed", i.Name, defaults), "")
		} else if defaults == 0 && len(scoped) >= 1 {
			v.addWarning(i.RowSource, models.KindItem, "is_default",
				fmt.Sprintf("item %q has no default size; the first size will be used", i.Name), "")
		}
	}
}

func (v *validation) sizeCodeResolvable(code string, scoped, global []models.ParsedItemSize) bool {
	codeKey := normKey(code)
	for _, s := range scoped {
		if normKey(s.SizeCode) == codeKey {
			return true
		}
	}
	for _, s := range global {
		if normKey(s.SizeCode) == codeKey {
			return true
		}
	}
	return v.ctx.SizeCodes[codeKey]
}

func (v *validation) validateOverrides() {
	uploadModifiers := make(map[string]bool, len(v.data.Modifiers))
	for _, m := range v.data.Modifiers {
		uploadModifiers[normKey(m.GroupKey, m.Key())] = true
	}

	for _, o := range v.data.ItemModifierOverrides {
		kind := models.KindItemModifierOverride

		if strings.TrimSpace(o.ItemName) == "" {
			v.addError(o.RowSource, kind, "item_name", "override must reference an item", o.ItemName)
			continue
		}
		if !v.itemResolvable(o.ItemName, o.ItemCategoryName) {
			v.addError(o.RowSource, kind, "item_name",
				fmt.Sprintf("override references unknown item %q", o.ItemName), o.ItemName)
		}

		if strings.TrimSpace(o.GroupKey) == "" {
			v.addError(o.RowSource, kind, "group_key", "override must reference a modifier group", o.GroupKey)
			continue
		}
		if !v.groupResolvable(o.GroupKey) {
			v.addError(o.RowSource, kind, "group_key",
				fmt.Sprintf("override references unknown modifier group %q", o.GroupKey), o.GroupKey)
			continue
		}

		if strings.TrimSpace(o.ModifierKey) == "" {
			v.addError(o.RowSource, kind, "modifier_key", "override must reference a modifier", o.ModifierKey)
			continue
		}
		modifierKey := normKey(o.GroupKey, o.ModifierKey)
		if !uploadModifiers[modifierKey] && !v.ctx.ModifierKeys[modifierKey] {
			v.addError(o.RowSource, kind, "modifier_key",
				fmt.Sprintf("override references unknown modifier %q in group %q", o.ModifierKey, o.GroupKey), o.ModifierKey)
		}
	}
}
