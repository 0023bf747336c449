package httpx

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const schemaCheckout = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["phone", "cart", "storeId", "paymentMethod"],
  "properties": {
    "phone": { "type": "string", "minLength": 1 },
    "storeId": { "type": "string", "minLength": 1 },
    "paymentMethod": { "type": "string" },
    "couponCode": { "type": ["string", "null"] },
    "discount": { "type": ["number", "string", "null"] },
    "totalAmount": { "type": ["number", "string", "null"] },
    "cart": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["product_id"],
        "properties": {
          "product_id": { "type": "integer", "minimum": 1 },
          "quantity": { "type": "integer", "minimum": 1, "maximum": 10000 }
        }
      }
    }
  }
}`

var checkoutSchema = gojsonschema.NewStringLoader(schemaCheckout)

func validateJSONSchema(schemaLoader gojsonschema.JSONLoader, body []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return badRequest("Invalid request body")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return badRequest(fmt.Sprintf("Request does not match schema: %s", strings.Join(msgs, "; ")))
	}
	return nil
}
