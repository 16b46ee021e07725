// Package selector filters and orders uploaded flyers by filename.
package selector

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/Bens368/IGIA/internal/domain"
)

// Rules describes which documents are flyers and how they are ordered.
type Rules struct {
	RequiredMarker  string // every selected name contains it
	Extension       string // compared case-insensitively, with the leading dot
	PrimaryMarker   string // group A
	SecondaryMarker string // group B
}

// DefaultRules returns the IGA flyer rules.
func DefaultRules() Rules {
	return Rules{
		RequiredMarker:  "IGA",
		Extension:       ".pdf",
		PrimaryMarker:   "raddar",
		SecondaryMarker: "W",
	}
}

// Groups is the three-way partition of the filtered documents.
type Groups struct {
	Primary   []domain.Document
	Secondary []domain.Document
	Rest      []domain.Document
}

// Ordered concatenates the groups: primary, secondary, rest.
func (g Groups) Ordered() []domain.Document {
	out := make([]domain.Document, 0, len(g.Primary)+len(g.Secondary)+len(g.Rest))
	out = append(out, g.Primary...)
	out = append(out, g.Secondary...)
	return append(out, g.Rest...)
}

// Select filters docs by the rules and returns them in processing order.
func Select(docs []domain.Document, rules Rules) ([]domain.Document, error) {
	if len(docs) == 0 {
		return nil, domain.InputError("no files uploaded", domain.ErrNoDocuments)
	}

	filtered := Filter(docs, rules)
	if len(filtered) == 0 {
		return nil, domain.InputError("no uploaded file matches the flyer naming rules", domain.ErrNoMatchingDocuments)
	}

	return Partition(filtered, rules).Ordered(), nil
}

// Filter keeps documents whose name has the required marker and extension.
func Filter(docs []domain.Document, rules Rules) []domain.Document {
	ext := strings.ToLower(rules.Extension)
	var out []domain.Document
	for _, doc := range docs {
		name := filepath.Base(doc.Name)
		if !strings.Contains(name, rules.RequiredMarker) {
			continue
		}
		if doc.Ext() != ext {
			continue
		}
		out = append(out, doc)
	}
	return out
}

// Partition splits docs into the three groups, each sorted by filename.
// A name containing both markers belongs to the primary group.
func Partition(docs []domain.Document, rules Rules) Groups {
	var g Groups
	for _, doc := range docs {
		name := filepath.Base(doc.Name)
		switch {
		case rules.PrimaryMarker != "" && strings.Contains(name, rules.PrimaryMarker):
			g.Primary = append(g.Primary, doc)
		case rules.SecondaryMarker != "" && strings.Contains(name, rules.SecondaryMarker):
			g.Secondary = append(g.Secondary, doc)
		default:
			g.Rest = append(g.Rest, doc)
		}
	}

	sortByName(g.Primary)
	sortByName(g.Secondary)
	sortByName(g.Rest)
	return g
}

func sortByName(docs []domain.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return filepath.Base(docs[i].Name) < filepath.Base(docs[j].Name)
	})
}
