package importer

import "fmt"

// LoadCatalogContext pre-fetches the natural keys of every live entity in
// the target catalog so validation can resolve references without further
// store access.
func LoadCatalogContext(store CatalogStore, tenantID, catalogID string) (*CatalogContext, error) {
	ctx := NewCatalogContext()

	categories, err := store.ListCategories(tenantID, catalogID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	nameByID := make(map[string]string, len(categories))
	for _, c := range categories {
		ctx.CategoryNames[normKey(c.Name)] = true
		nameByID[c.ID.String()] = c.Name
	}

	sizes, err := store.ListItemSizes(tenantID, catalogID)
	if err != nil {
		return nil, fmt.Errorf("failed to list item sizes: %w", err)
	}
	for _, s := range sizes {
		ctx.SizeCodes[normKey(s.SizeCode)] = true
	}

	groups, err := store.ListModifierGroups(tenantID, catalogID)
	if err != nil {
		return nil, fmt.Errorf("failed to list modifier groups: %w", err)
	}
	groupKeyByID := make(map[string]string, len(groups))
	for _, g := range groups {
		ctx.GroupKeys[normKey(g.GroupKey)] = true
		groupKeyByID[g.ID.String()] = g.GroupKey
	}

	modifiers, err := store.ListModifiers(tenantID, catalogID)
	if err != nil {
		return nil, fmt.Errorf("failed to list modifiers: %w", err)
	}
	for _, m := range modifiers {
		ctx.ModifierKeys[normKey(groupKeyByID[m.GroupID.String()], m.ModifierKey)] = true
	}

	items, err := store.ListItems(tenantID, catalogID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	for _, i := range items {
		ctx.ItemKeys[normKey(i.Name, nameByID[i.CategoryID.String()])] = true
		ctx.ItemNames[normKey(i.Name)] = true
	}

	return ctx, nil
}
