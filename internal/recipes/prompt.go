package recipes

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/Bens368/IGIA/internal/domain"
)

const (
	// MinOverlapWithProtein applies when the recipe's protein is on sale.
	MinOverlapWithProtein = 3
	// MinOverlapWithoutProtein applies otherwise.
	MinOverlapWithoutProtein = 5
)

// recipeRow is the delimited form of a recipe sent to the model.
type recipeRow struct {
	Name         string `csv:"recipe"`
	Protein      string `csv:"protein"`
	Ingredients  string `csv:"ingredients"`
	LastUsedWeek string `csv:"last_used_week"`
}

// SplitHalves cuts recipes into two contiguous halves. The first half gets
// the extra row when the count is odd.
func SplitHalves(recipes []domain.RecipeRecord) (first, second []domain.RecipeRecord) {
	mid := (len(recipes) + 1) / 2
	return recipes[:mid], recipes[mid:]
}

// BuildPrompt asks the model which recipes meet the overlap rules.
func BuildPrompt(recipes []domain.RecipeRecord, available []string) (string, error) {
	rows := make([]recipeRow, 0, len(recipes))
	for _, r := range recipes {
		week := ""
		if r.LastUsedWeek != nil {
			week = strconv.Itoa(*r.LastUsedWeek)
		}
		rows = append(rows, recipeRow{
			Name:         r.Name,
			Protein:      r.Protein,
			Ingredients:  r.IngredientsRaw,
			LastUsedWeek: week,
		})
	}

	table, err := gocsv.MarshalString(&rows)
	if err != nil {
		return "", domain.ValidationError("failed to render recipes", err)
	}

	var sb strings.Builder
	sb.WriteString("You help plan weekly meals from grocery flyer specials.\n\n")
	sb.WriteString("Recipes (CSV):\n")
	sb.WriteString("---\n")
	sb.WriteString(table)
	sb.WriteString("---\n\n")
	sb.WriteString("Ingredients on sale this week:\n")
	sb.WriteString(strings.Join(available, ", "))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, `A recipe qualifies when either rule holds:
1. Its protein is among the ingredients on sale AND at least %d of its ingredients are on sale.
2. Its protein is not on sale AND at least %d of its ingredients are on sale.

List every qualifying recipe with the rule it meets and the ingredients on sale it uses. Then list the recipes that do not qualify in one line.`,
		MinOverlapWithProtein, MinOverlapWithoutProtein)
	return sb.String(), nil
}

// Overlap is the local count behind the matching rules.
type Overlap struct {
	Recipe         string
	ProteinOnSale  bool
	Matching       []string
	Count          int
	MeetsCriterion bool
}

// ComputeOverlap counts how many of a recipe's ingredients are in available.
// It is informational; the model's verdict is never overridden by it.
func ComputeOverlap(recipe domain.RecipeRecord, available []string) Overlap {
	set := make(map[string]struct{}, len(available))
	for _, a := range available {
		set[domain.NormalizeIngredient(a)] = struct{}{}
	}

	o := Overlap{Recipe: recipe.Name}
	_, o.ProteinOnSale = set[domain.NormalizeIngredient(recipe.Protein)]

	seen := make(map[string]struct{}, len(recipe.Ingredients))
	for _, ing := range recipe.Ingredients {
		if _, dup := seen[ing]; dup {
			continue
		}
		seen[ing] = struct{}{}
		if _, ok := set[ing]; ok {
			o.Matching = append(o.Matching, ing)
		}
	}
	o.Count = len(o.Matching)

	if o.ProteinOnSale {
		o.MeetsCriterion = o.Count >= MinOverlapWithProtein
	} else {
		o.MeetsCriterion = o.Count >= MinOverlapWithoutProtein
	}
	return o
}
