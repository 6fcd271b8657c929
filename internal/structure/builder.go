// Package structure groups flat quotation lines into a Section → Category → Item tree with a
// deterministic order, and flattens such a tree back into its canonical item sequence.
package structure

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Labels used when neither the snapshot nor the live value is present.
const (
	DefaultSection  = "Sin sección"
	DefaultCategory = "Sin categoría"
	DefaultItemName = "Item sin nombre"
)

// Names is one textual field set of a line.
type Names struct {
	Section     string `json:"section,omitempty"`
	Category    string `json:"category,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Line is a flat input record. Snapshot values win over Live values field by field.
type Line struct {
	ID            int64          `json:"id"`
	CatalogItemID *int64         `json:"catalog_item_id,omitempty"`
	BillingType   string         `json:"billing_type,omitempty"`
	Snapshot      Names          `json:"snapshot"`
	Live          Names          `json:"live"`
	Quantity      float64        `json:"quantity"`
	UnitPrice     *float64       `json:"unit_price,omitempty"`
	Subtotal      float64        `json:"subtotal"`
	Order         *int           `json:"order,omitempty"`
	SectionOrder  *int           `json:"section_order,omitempty"`
	CategoryOrder *int           `json:"category_order,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// Options tunes Build.
type Options struct {
	IncludePrices       bool    `json:"include_prices"`
	IncludeDescriptions bool    `json:"include_descriptions"`
	OrderBy             OrderBy `json:"order_by"`
}

// Hierarchy is the built tree plus the sum of every input subtotal.
type Hierarchy struct {
	Sections []Section `json:"sections"`
	Total    float64   `json:"total"`
}

// Section groups categories.
type Section struct {
	Name       string     `json:"name"`
	Order      int        `json:"order"`
	Categories []Category `json:"categories"`
}

// Category groups items.
type Category struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
	Items []Item `json:"items"`
}

// Item is an output line. Fields are carried over from the input unchanged.
type Item struct {
	ID            int64          `json:"id"`
	CatalogItemID *int64         `json:"catalog_item_id,omitempty"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	BillingType   string         `json:"billing_type,omitempty"`
	Quantity      float64        `json:"quantity"`
	UnitPrice     *float64       `json:"unit_price,omitempty"`
	Subtotal      *float64       `json:"subtotal,omitempty"`
	Order         *int           `json:"order,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// Resolve prefers the snapshot value, then the live value, then fallback.
func Resolve(snapshot, live, fallback string) string {
	if v := strings.TrimSpace(snapshot); v != "" {
		return snapshot
	}
	if v := strings.TrimSpace(live); v != "" {
		return live
	}
	return fallback
}

type itemAcc struct {
	line Line
	name string
	rank rank
}

type categoryAcc struct {
	name  string
	rank  rank
	items []itemAcc
}

type sectionAcc struct {
	name       string
	rank       rank
	categories []*categoryAcc
	byName     map[string]*categoryAcc
}

// Build groups lines into a hierarchy. Lines are not validated; invalid quantities or subtotals
// pass through as given.
func Build(lines []Line, opts Options) Hierarchy {
	total := decimal.Zero
	sections := make([]*sectionAcc, 0)
	byName := make(map[string]*sectionAcc)

	for i, l := range lines {
		total = total.Add(decimal.NewFromFloat(l.Subtotal))

		secName := Resolve(l.Snapshot.Section, l.Live.Section, DefaultSection)
		catName := Resolve(l.Snapshot.Category, l.Live.Category, DefaultCategory)
		itemName := Resolve(l.Snapshot.Name, l.Live.Name, DefaultItemName)

		sec, ok := byName[secName]
		if !ok {
			sec = &sectionAcc{
				name:   secName,
				rank:   groupRank(opts.OrderBy, i, l.SectionOrder, l.Order),
				byName: make(map[string]*categoryAcc),
			}
			byName[secName] = sec
			sections = append(sections, sec)
		}

		// Categories are tracked per section, so the same category name under two sections
		// forms two independent groups.
		cat, ok := sec.byName[catName]
		if !ok {
			cat = &categoryAcc{
				name: catName,
				rank: groupRank(opts.OrderBy, i, l.CategoryOrder, l.Order),
			}
			sec.byName[catName] = cat
			sec.categories = append(sec.categories, cat)
		}

		cat.items = append(cat.items, itemAcc{
			line: l,
			name: itemName,
			rank: lineRank(opts.OrderBy, i, itemName, l.Order),
		})
	}

	sort.SliceStable(sections, func(a, b int) bool { return sections[a].rank.less(sections[b].rank) })

	out := Hierarchy{Sections: make([]Section, 0, len(sections))}
	out.Total, _ = total.Round(2).Float64()

	for _, sec := range sections {
		cats := sec.categories
		sort.SliceStable(cats, func(a, b int) bool { return cats[a].rank.less(cats[b].rank) })

		section := Section{Name: sec.name, Order: sec.rank.order, Categories: make([]Category, 0, len(cats))}
		for _, cat := range cats {
			items := cat.items
			sort.SliceStable(items, func(a, b int) bool { return items[a].rank.less(items[b].rank) })

			category := Category{Name: cat.name, Order: cat.rank.order, Items: make([]Item, 0, len(items))}
			for _, it := range items {
				category.Items = append(category.Items, toItem(it, opts))
			}
			section.Categories = append(section.Categories, category)
		}
		out.Sections = append(out.Sections, section)
	}
	return out
}

func groupRank(mode OrderBy, seen int, catalogOrder, itemOrder *int) rank {
	switch mode {
	case OrderCatalog:
		return rank{order: position(catalogOrder), seen: seen}
	case OrderInsertion:
		return rank{order: position(itemOrder), seen: seen}
	default:
		return rank{order: seen, seen: seen}
	}
}

func lineRank(mode OrderBy, seen int, name string, order *int) rank {
	switch mode {
	case OrderCatalog:
		return rank{weight: itemWeight(name), order: position(order), seen: seen}
	case OrderInsertion:
		return rank{order: position(order), seen: seen}
	default:
		return rank{seen: seen}
	}
}

func toItem(it itemAcc, opts Options) Item {
	l := it.line
	item := Item{
		ID:            l.ID,
		CatalogItemID: l.CatalogItemID,
		Name:          it.name,
		BillingType:   l.BillingType,
		Quantity:      l.Quantity,
		Order:         l.Order,
		Extra:         l.Extra,
	}
	if opts.IncludeDescriptions {
		item.Description = Resolve(l.Snapshot.Description, l.Live.Description, "")
	}
	if opts.IncludePrices {
		subtotal := l.Subtotal
		item.Subtotal = &subtotal
		item.UnitPrice = l.UnitPrice
	}
	return item
}

// Flatten returns the item ids of h in section → category → item order. This is the canonical
// order used to assign display and scheduling indices.
func Flatten(h Hierarchy) []int64 {
	ids := make([]int64, 0)
	for _, sec := range h.Sections {
		for _, cat := range sec.Categories {
			for _, item := range cat.Items {
				ids = append(ids, item.ID)
			}
		}
	}
	return ids
}
