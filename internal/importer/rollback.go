package importer

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"catalog-service/internal/models"
)

// Rollback undoes a committed import by replaying its operation log in
// reverse order: entities the commit created are deleted and entities it
// updated are restored to their snapshotted pre-image. The caller runs it
// inside a single store transaction; any error aborts the whole rollback.
func Rollback(store CatalogStore, tenantID string, log models.RollbackLog) error {
	for i := len(log) - 1; i >= 0; i-- {
		op := log[i]
		id, err := uuid.Parse(op.ID)
		if err != nil {
			return fmt.Errorf("rollback operation %d has invalid id %q: %w", i, op.ID, err)
		}

		switch op.Action {
		case models.RollbackActionCreate:
			err = deleteEntity(store, tenantID, op.EntityType, id)
		case models.RollbackActionUpdate:
			err = restoreEntity(store, op.EntityType, id, op.PreviousData)
		default:
			err = fmt.Errorf("unknown rollback action %q", op.Action)
		}
		if err != nil {
			return fmt.Errorf("rollback operation %d (%s %s %s) failed: %w", i, op.Action, op.EntityType, op.ID, err)
		}
	}
	return nil
}

func deleteEntity(store CatalogStore, tenantID, entityType string, id uuid.UUID) error {
	switch entityType {
	case entityCategory:
		return store.DeleteCategory(tenantID, id)
	case entityItemSize:
		return store.DeleteItemSize(tenantID, id)
	case entityModifierGroup:
		return store.DeleteModifierGroup(tenantID, id)
	case entityModifier:
		return store.DeleteModifier(tenantID, id)
	case entityItem:
		return store.DeleteItem(tenantID, id)
	}
	return fmt.Errorf("unknown entity type %q", entityType)
}

func restoreEntity(store CatalogStore, entityType string, id uuid.UUID, snapshot json.RawMessage) error {
	if len(snapshot) == 0 {
		return fmt.Errorf("missing snapshot for %s %s", entityType, id)
	}

	switch entityType {
	case entityCategory:
		var category models.Category
		if err := json.Unmarshal(snapshot, &category); err != nil {
			return fmt.Errorf("failed to decode category snapshot: %w", err)
		}
		return store.UpdateCategory(&category)
	case entityItemSize:
		var size models.ItemSize
		if err := json.Unmarshal(snapshot, &size); err != nil {
			return fmt.Errorf("failed to decode size snapshot: %w", err)
		}
		return store.UpdateItemSize(&size)
	case entityModifierGroup:
		var group models.ModifierGroup
		if err := json.Unmarshal(snapshot, &group); err != nil {
			return fmt.Errorf("failed to decode modifier group snapshot: %w", err)
		}
		return store.UpdateModifierGroup(&group)
	case entityModifier:
		var modifier models.Modifier
		if err := json.Unmarshal(snapshot, &modifier); err != nil {
			return fmt.Errorf("failed to decode modifier snapshot: %w", err)
		}
		return store.UpdateModifier(&modifier)
	case entityItem:
		var item models.Item
		if err := json.Unmarshal(snapshot, &item); err != nil {
			return fmt.Errorf("failed to decode item snapshot: %w", err)
		}
		return store.UpdateItem(&item)
	}
	return fmt.Errorf("unknown entity type %q", entityType)
}
