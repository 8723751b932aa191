package driveops

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/irdrive/internal/graph"
)

func TestMatchChild(t *testing.T) {
	children := []graph.Item{
		{ID: "1", Name: "davao city", IsFolder: true},
		{ID: "2", Name: "Davao City", IsFolder: true},
		{ID: "3", Name: "Cafe\u0301", IsFolder: true}, // decomposed
		{ID: "4", Name: "STRASSE", IsFolder: true},
	}

	tests := []struct {
		name string
		want string
	}{
		{"Davao City", "2"}, // exact wins over case variant
		{"DAVAO CITY", "1"}, // first equivalent
		{"Café", "3"},       // NFC
		{"CAFÉ", "3"},       // NFC + fold
		{"straße", "4"},     // full case folding
		{"Quezon City", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchChild(children, tt.name)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}

			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestSortByName(t *testing.T) {
	items := []Item{{Name: "b.docx"}, {Name: "A.docx"}, {Name: "a.docx"}, {Name: "C.pdf"}}
	sortByName(items)

	var names []string
	for _, it := range items {
		names = append(names, it.Name)
	}

	assert.Equal(t, []string{"A.docx", "a.docx", "b.docx", "C.pdf"}, names)
}

func TestLookup(t *testing.T) {
	absent := Absent()
	assert.False(t, absent.Exists())

	_, ok := absent.Item()
	assert.False(t, ok)

	found := Found(Item{ID: "x", Kind: KindFolder})
	item, ok := found.Item()
	assert.True(t, ok)
	assert.True(t, item.IsFolder())
	assert.Equal(t, "folder", item.Kind.String())
}

func TestItem_JSONDecodesWhatItEncodes(t *testing.T) {
	want := []Item{
		{ID: "f1", Name: "2025", Kind: KindFolder, ParentID: "root"},
		{
			ID: "d1", Name: "SMCOD-IR-GS-DVO-2025-0001.docx", Kind: KindFile, ParentID: "f1",
			Size: 42, MimeType: "application/octet-stream",
			ModifiedAt: time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC),
		},
	}

	data, err := json.Marshal(want)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"folder"`)

	var got []Item
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, want, got)

	var k Kind
	assert.Error(t, k.UnmarshalText([]byte("symlink")))
}
