package driveops

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/irdrive/internal/graph"
)

// Kind distinguishes folders from files.
type Kind int

const (
	KindFile Kind = iota
	KindFolder
)

func (k Kind) String() string {
	if k == KindFolder {
		return "folder"
	}

	return "file"
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "file":
		*k = KindFile
	case "folder":
		*k = KindFolder
	default:
		return fmt.Errorf("driveops: unknown item kind %q", text)
	}

	return nil
}

// Item is a resolved remote folder or file. IDs stay valid across renames
// and are what every later operation uses.
type Item struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Kind       Kind      `json:"kind"`
	ParentID   string    `json:"parent_id,omitempty"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitzero"`
}

// IsFolder reports whether the item is a folder.
func (i Item) IsFolder() bool { return i.Kind == KindFolder }

func itemFrom(g *graph.Item) Item {
	kind := KindFile
	if g.IsFolder {
		kind = KindFolder
	}

	return Item{
		ID:         g.ID,
		Name:       g.Name,
		Kind:       kind,
		ParentID:   g.ParentID,
		Size:       g.Size,
		MimeType:   g.MimeType,
		ModifiedAt: g.ModifiedAt,
	}
}

// Lookup is the outcome of a path lookup that completed: the item is
// either absent or found. Failed lookups return an error instead.
type Lookup struct {
	item  Item
	found bool
}

// Absent is the lookup result for a path with no item.
func Absent() Lookup { return Lookup{} }

// Found wraps an existing item.
func Found(item Item) Lookup { return Lookup{item: item, found: true} }

// Exists reports whether the lookup found an item.
func (l Lookup) Exists() bool { return l.found }

// Item returns the found item and true, or false when absent.
func (l Lookup) Item() (Item, bool) { return l.item, l.found }

// foldName maps a name to its comparison key: NFC-normalized and case
// folded, matching how SharePoint treats names as equal.
func foldName(name string) string {
	return cases.Fold().String(norm.NFC.String(name))
}

// matchChild picks the child called name. An exact match wins over one that
// is only equal after normalization and case folding.
func matchChild(children []graph.Item, name string) *graph.Item {
	for i := range children {
		if children[i].Name == name {
			return &children[i]
		}
	}

	key := foldName(name)

	for i := range children {
		if foldName(children[i].Name) == key {
			return &children[i]
		}
	}

	return nil
}

// sortByName orders items case-insensitively, then exactly.
func sortByName(items []Item) {
	slices.SortFunc(items, func(a, b Item) int {
		return cmp.Or(
			cmp.Compare(foldName(a.Name), foldName(b.Name)),
			cmp.Compare(a.Name, b.Name),
		)
	})
}
