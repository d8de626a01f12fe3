package domain

import (
	"fmt"
	"sort"
	"time"
)

type TransactionGroupItem struct {
	Seq           int
	TransactionID string
}

// TransactionGroup bundles transactions that are executed together. Atomic
// groups fail as a whole, sequential ones are submitted in Seq order.
type TransactionGroup struct {
	ID          string
	Description string
	Atomic      bool
	Sequential  bool
	Items       []TransactionGroupItem
	CreatedAt   time.Time
}

func NewTransactionGroup(
	id, description string, atomic, sequential bool, txIDs []string,
) (*TransactionGroup, error) {
	if id == "" {
		return nil, fmt.Errorf("missing group id")
	}
	if len(txIDs) == 0 {
		return nil, fmt.Errorf("group must contain at least one transaction")
	}
	items := make([]TransactionGroupItem, 0, len(txIDs))
	seen := make(map[string]struct{})
	for i, txID := range txIDs {
		if _, ok := seen[txID]; ok {
			return nil, fmt.Errorf("duplicate transaction %s in group", txID)
		}
		seen[txID] = struct{}{}
		items = append(items, TransactionGroupItem{Seq: i, TransactionID: txID})
	}
	return &TransactionGroup{
		ID:          id,
		Description: description,
		Atomic:      atomic,
		Sequential:  sequential,
		Items:       items,
		CreatedAt:   time.Now(),
	}, nil
}

// SortedItems returns the items ordered by Seq.
func (g *TransactionGroup) SortedItems() []TransactionGroupItem {
	items := append([]TransactionGroupItem{}, g.Items...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Seq < items[j].Seq
	})
	return items
}

// TransactionIDs returns the member ids ordered by Seq.
func (g *TransactionGroup) TransactionIDs() []string {
	items := g.SortedItems()
	ids := make([]string, 0, len(items))
	for _, i := range items {
		ids = append(ids, i.TransactionID)
	}
	return ids
}
