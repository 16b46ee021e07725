// Package tables turns vision model replies into item/price tables and
// persists their aggregate.
package tables

import "encoding/json"

// SchemaName identifies the item/price schema in structured-output requests.
const SchemaName = "flyer_items"

// itemPriceSchema is the only reply shape accepted from the vision model:
// two parallel string arrays and nothing else.
const itemPriceSchema = `{
  "type": "object",
  "properties": {
    "item": {
      "type": "array",
      "items": {"type": "string"}
    },
    "price": {
      "type": "array",
      "items": {"type": "string"}
    }
  },
  "required": ["item", "price"],
  "additionalProperties": false
}`

// Schema returns the item/price JSON schema.
func Schema() json.RawMessage {
	return json.RawMessage(itemPriceSchema)
}
