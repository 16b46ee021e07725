package tables

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Bens368/IGIA/internal/domain"
)

var schemaLoader = gojsonschema.NewStringLoader(itemPriceSchema)

// ValidationError lists every schema violation found in a reply
type ValidationError struct {
	Errors []FieldError
}

// FieldError is a single violation at a field path
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf(" %d. %s: %s;", i+1, err.Field, err.Message))
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// StripCodeFences removes markdown code fences around a reply and any prose
// outside the outermost JSON object.
func StripCodeFences(reply string) string {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))

	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

// Parse validates a model reply against the item/price schema and decodes it.
// The returned table has no position or source set.
func Parse(reply string) (domain.ItemTable, error) {
	body := StripCodeFences(reply)
	if body == "" {
		return domain.ItemTable{}, domain.SchemaError("model reply is empty", nil)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(body))
	if err != nil {
		return domain.ItemTable{}, domain.SchemaError("model reply is not valid JSON", err)
	}

	if !result.Valid() {
		verr := &ValidationError{Errors: make([]FieldError, 0, len(result.Errors()))}
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "" {
				field = "(root)"
			}
			verr.Errors = append(verr.Errors, FieldError{Field: field, Message: desc.Description()})
		}
		return domain.ItemTable{}, domain.SchemaError("model reply does not match the item/price schema", verr)
	}

	var decoded struct {
		Item  []string `json:"item"`
		Price []string `json:"price"`
	}
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return domain.ItemTable{}, domain.SchemaError("failed to decode model reply", err)
	}

	table := domain.ItemTable{Items: decoded.Item, Prices: decoded.Price}
	if !table.Valid() {
		return domain.ItemTable{}, domain.SchemaError(
			fmt.Sprintf("item column has %d rows but price column has %d", len(table.Items), len(table.Prices)),
			domain.ErrColumnMismatch,
		)
	}
	return table, nil
}
