package selector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bens368/IGIA/internal/domain"
)

func docs(names ...string) []domain.Document {
	out := make([]domain.Document, 0, len(names))
	for _, n := range names {
		out = append(out, domain.Document{Name: n})
	}
	return out
}

func names(docs []domain.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Name)
	}
	return out
}

func TestSelect_UploadScenario(t *testing.T) {
	selected, err := Select(docs("IGA_other.pdf", "IGA_W2.pdf", "IGA_raddar_1.pdf"), DefaultRules())
	require.NoError(t, err)
	assert.Equal(t, []string{"IGA_raddar_1.pdf", "IGA_W2.pdf", "IGA_other.pdf"}, names(selected))
}

func TestSelect_EmptyInput(t *testing.T) {
	selected, err := Select(nil, DefaultRules())
	require.Error(t, err)
	assert.Empty(t, selected)
	assert.True(t, errors.Is(err, domain.ErrNoDocuments))
	assert.True(t, domain.IsType(err, domain.ErrorTypeInput))
}

func TestSelect_NothingMatches(t *testing.T) {
	selected, err := Select(docs("metro.pdf", "IGA_notes.txt", "iga_lower.pdf"), DefaultRules())
	require.Error(t, err)
	assert.Empty(t, selected)
	assert.True(t, errors.Is(err, domain.ErrNoMatchingDocuments))
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "requires marker",
			input: []string{"IGA_a.pdf", "Maxi_a.pdf"},
			want:  []string{"IGA_a.pdf"},
		},
		{
			name:  "requires extension",
			input: []string{"IGA_a.pdf", "IGA_a.jpg", "IGA_pdf"},
			want:  []string{"IGA_a.pdf"},
		},
		{
			name:  "extension is case-insensitive",
			input: []string{"IGA_a.PDF"},
			want:  []string{"IGA_a.PDF"},
		},
		{
			name:  "marker is case-sensitive",
			input: []string{"iga_a.pdf"},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(docs(tt.input...), DefaultRules())
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestPartition_GroupsAndOrder(t *testing.T) {
	input := docs(
		"IGA_z.pdf",
		"IGA_W9.pdf",
		"IGA_raddar_2.pdf",
		"IGA_a.pdf",
		"IGA_W1.pdf",
		"IGA_raddar_W.pdf",
		"IGA_raddar_1.pdf",
	)

	g := Partition(input, DefaultRules())
	assert.Equal(t, []string{"IGA_raddar_1.pdf", "IGA_raddar_2.pdf", "IGA_raddar_W.pdf"}, names(g.Primary))
	assert.Equal(t, []string{"IGA_W1.pdf", "IGA_W9.pdf"}, names(g.Secondary))
	assert.Equal(t, []string{"IGA_a.pdf", "IGA_z.pdf"}, names(g.Rest))

	ordered := g.Ordered()
	assert.Equal(t, []string{
		"IGA_raddar_1.pdf", "IGA_raddar_2.pdf", "IGA_raddar_W.pdf",
		"IGA_W1.pdf", "IGA_W9.pdf",
		"IGA_a.pdf", "IGA_z.pdf",
	}, names(ordered))
}

// The partition must cover exactly the filtered subset, with no document lost or duplicated.
func TestSelect_IsPartitionOfFilteredSubset(t *testing.T) {
	input := docs(
		"IGA_raddar_3.pdf", "notes.pdf", "IGA_W.pdf", "IGA_x.pdf",
		"IGA_raddar_1.pdf", "IGA_y.docx", "IGA_Wk.pdf", "IGA_b.pdf",
	)

	selected, err := Select(input, DefaultRules())
	require.NoError(t, err)

	filtered := Filter(input, DefaultRules())
	assert.ElementsMatch(t, names(filtered), names(selected))

	seen := map[string]int{}
	for _, d := range selected {
		seen[d.Name]++
	}
	for name, count := range seen {
		assert.Equal(t, 1, count, name)
	}

	// group order: every primary before every secondary before every rest
	rank := func(name string) int {
		g := Partition(docs(name), DefaultRules())
		switch {
		case len(g.Primary) == 1:
			return 0
		case len(g.Secondary) == 1:
			return 1
		default:
			return 2
		}
	}
	for i := 1; i < len(selected); i++ {
		prev, cur := selected[i-1].Name, selected[i].Name
		assert.LessOrEqual(t, rank(prev), rank(cur))
		if rank(prev) == rank(cur) {
			assert.Less(t, prev, cur)
		}
	}
}

func TestPartition_UsesBaseName(t *testing.T) {
	// a directory named after a marker must not change the group
	g := Partition(docs("/uploads/raddar/IGA_x.pdf"), DefaultRules())
	assert.Len(t, g.Rest, 1)
}
