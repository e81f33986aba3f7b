package reference

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Index provides bidirectional name/id lookup plus per-item volume and portion
// size. Built once from the catalog; read-only afterwards, so no locking.
type Index struct {
	byID   map[int]Item
	byName map[string]int
}

// NewIndex builds an index from a catalog.
// Item names are unique in the dump; a duplicate name keeps the first id seen
// and logs the collision.
func NewIndex(items []Item, log zerolog.Logger) *Index {
	idx := &Index{
		byID:   make(map[int]Item, len(items)),
		byName: make(map[string]int, len(items)),
	}

	for _, item := range items {
		idx.byID[item.TypeID] = item
		if existing, ok := idx.byName[item.Name]; ok {
			log.Warn().
				Str("name", item.Name).
				Int("kept", existing).
				Int("dropped", item.TypeID).
				Msg("Duplicate item name in catalog")
			continue
		}
		idx.byName[item.Name] = item.TypeID
	}

	return idx
}

// ItemName returns the display name for an item id.
func (idx *Index) ItemName(typeID int) (string, bool) {
	item, ok := idx.byID[typeID]
	return item.Name, ok
}

// ItemID returns the item id for a display name.
func (idx *Index) ItemID(name string) (int, bool) {
	id, ok := idx.byName[name]
	return id, ok
}

// Item returns the full item record.
func (idx *Index) Item(typeID int) (Item, bool) {
	item, ok := idx.byID[typeID]
	return item, ok
}

// Volume returns the unit volume for an item, 0 for unknown items.
func (idx *Index) Volume(typeID int) float64 {
	return idx.byID[typeID].Volume
}

// PortionSize returns the reprocessing batch size for an item.
// Unknown items report 1 so a caller dividing by it stays finite.
func (idx *Index) PortionSize(typeID int) float64 {
	item, ok := idx.byID[typeID]
	if !ok || item.PortionSize <= 0 {
		return 1
	}
	return item.PortionSize
}

// Len returns the number of items in the catalog.
func (idx *Index) Len() int {
	return len(idx.byID)
}

// MustItemID resolves a name or returns an error mentioning the name,
// for request handlers that surface bad names to the caller.
func (idx *Index) MustItemID(name string) (int, error) {
	id, ok := idx.byName[name]
	if !ok {
		return 0, fmt.Errorf("unknown item name %q", name)
	}
	return id, nil
}
