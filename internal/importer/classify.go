package importer

import (
	"path/filepath"
	"strings"

	"catalog-service/internal/models"
)

// rowClassifier pairs an entity kind with a pure predicate over a parsed row.
// Classifiers are evaluated strictly in slice order; the first match wins.
type rowClassifier struct {
	kind  models.EntityKind
	match func(row map[string]string) bool
}

// Heuristic classification for files that declare no entity kind. The
// precedence is load-bearing: a size-code cell outranks a group key, a group
// with a display type outranks a modifier key, and so on. Changing the order
// changes how ambiguous rows land.
var rowClassifiers = []rowClassifier{
	{models.KindItemSize, isSizeRow},
	{models.KindModifierGroup, isModifierGroupRow},
	{models.KindModifier, isModifierRow},
	{models.KindItem, isItemRow},
	{models.KindModifierGroup, isGroupedNameRow},
}

func isSizeRow(row map[string]string) bool {
	return field(row, colSizeCode) != ""
}

func isModifierGroupRow(row map[string]string) bool {
	return field(row, colGroupKey) != "" &&
		field(row, colDisplayType) != "" &&
		field(row, colModifierKey) == ""
}

func isModifierRow(row map[string]string) bool {
	if field(row, colModifierKey) != "" {
		return true
	}
	return parseIntCell(field(row, colMaxQuantity)) > 0
}

func isItemRow(row map[string]string) bool {
	return field(row, colName) != "" && field(row, colGroupRef) == ""
}

func isGroupedNameRow(row map[string]string) bool {
	return field(row, colName) != "" && field(row, colGroupRef) != ""
}

// classifyRow runs the heuristic chain over one row. Rows that match no
// classifier fall through to category, the least structured kind.
func classifyRow(row map[string]string) models.EntityKind {
	for _, c := range rowClassifiers {
		if c.match(row) {
			return c.kind
		}
	}
	return models.KindCategory
}

// kindFromFilename derives an entity kind hint from a file's base name.
// This is the deterministic path and is preferred over row heuristics
// whenever the name is recognizable. Substring checks are ordered so that
// compound names resolve to the more specific kind ("item_sizes" is sizes,
// "modifier_groups" is groups).
func kindFromFilename(name string) (models.EntityKind, bool) {
	base := strings.ToLower(filepath.Base(name))
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[:i]
	}
	switch {
	case strings.Contains(base, "override"):
		return models.KindItemModifierOverride, true
	case strings.Contains(base, "mod_group"), strings.Contains(base, "modifier_group"), strings.Contains(base, "group"):
		return models.KindModifierGroup, true
	case strings.Contains(base, "size"):
		return models.KindItemSize, true
	case strings.Contains(base, "modifier"), strings.Contains(base, "mod"):
		return models.KindModifier, true
	case strings.Contains(base, "categor"):
		return models.KindCategory, true
	case strings.Contains(base, "item"), strings.Contains(base, "product"), strings.Contains(base, "menu"):
		return models.KindItem, true
	}
	return "", false
}
