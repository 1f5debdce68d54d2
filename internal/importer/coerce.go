package importer

import (
	"strconv"
	"strings"
)

// Column aliases, matched against normalized (lowercased, trimmed) headers.
// Both snake_case and camelCase spellings collapse to the same normalized
// form, so "sizeCode" and "size_code" are covered by "sizecode"/"size_code".
var (
	colName        = []string{"name"}
	colDescription = []string{"description", "desc"}
	colSizeCode    = []string{"size_code", "sizecode", "code"}
	colGroupKey    = []string{"group_key", "groupkey", "group", "group_name", "groupname", "modifier_group", "modifiergroup"}
	colModifierKey = []string{"modifier_key", "modifierkey", "modifier"}
	colPrice       = []string{"price", "value"}
	colBasePrice   = []string{"base_price", "baseprice", "price", "value"}
	colSortOrder   = []string{"sort_order", "sortorder", "display_order", "displayorder", "position"}
	colActive      = []string{"active", "is_active", "isactive"}
	colIsDefault   = []string{"is_default", "isdefault", "default"}
	colMaxQuantity = []string{"max_quantity", "maxquantity", "max_qty", "maxqty"}
	colMinSelect   = []string{"min_select", "minselect"}
	colMaxSelect   = []string{"max_select", "maxselect"}
	colDisplayType = []string{"display_type", "displaytype"}
	colIsSizeable  = []string{"is_sizeable", "issizeable", "sizeable"}
	colDefaultSize = []string{"default_size", "defaultsize", "default_size_code", "defaultsizecode"}
	colCategoryRef = []string{"category_name", "categoryname", "category", "parent"}
	colCategoryID  = []string{"category_id", "categoryid"}
	colItemRef     = []string{"item_name", "itemname", "item", "parent"}
	colItemCatRef  = []string{"item_category_name", "itemcategoryname", "item_category", "itemcategory"}
	colGroupRef    = []string{"group_key", "groupkey", "group", "group_name", "groupname", "modifier_group", "modifiergroup", "parent"}
	colPricesSize  = []string{"prices_by_size", "pricesbysize", "size_prices", "sizeprices"}
)

// field returns the first non-empty cell among the aliased columns
func field(row map[string]string, aliases []string) string {
	for _, a := range aliases {
		if v, ok := row[a]; ok && v != "" {
			return v
		}
	}
	return ""
}

// hasColumn reports whether any aliased column exists in the row at all,
// regardless of value
func hasColumn(row map[string]string, aliases []string) bool {
	for _, a := range aliases {
		if _, ok := row[a]; ok {
			return true
		}
	}
	return false
}

// parseBoolCell applies the coercion policy for boolean cells: exactly
// "true", "1" or "yes" are true, everything else is false.
func parseBoolCell(value string) bool {
	return value == "true" || value == "1" || value == "yes"
}

// boolField coerces an aliased boolean column, falling back to def when the
// column is absent from the file entirely (an empty cell is an explicit
// false).
func boolField(row map[string]string, aliases []string, def bool) bool {
	if !hasColumn(row, aliases) {
		return def
	}
	return parseBoolCell(field(row, aliases))
}

// parseFloatCell coerces a numeric cell, degrading to 0 on malformed input
// so a single bad cell never fails the whole parse.
func parseFloatCell(value string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return f
}

// parseIntCell coerces an integer cell, degrading to 0 on malformed input
func parseIntCell(value string) int {
	v := strings.TrimSpace(value)
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int(f)
	}
	return 0
}

// parsePricesBySize parses a per-size price cell of the form
// "S:1.00;M:1.50" (semicolon or comma separated CODE:price pairs) into a
// size-code keyed map. Malformed pairs are dropped.
func parsePricesBySize(value string) map[string]float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	pairs := strings.FieldsFunc(value, func(r rune) bool {
		return r == ';' || r == ','
	})
	prices := make(map[string]float64)
	for _, pair := range pairs {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		code := strings.TrimSpace(parts[0])
		if code == "" {
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		prices[code] = price
	}
	if len(prices) == 0 {
		return nil
	}
	return prices
}
