package http

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// JSON schemas for the purchase entry points. Bodies are validated against
// these before binding, so handlers only ever see well-formed requests.
const (
	nativePurchaseSchema = `{
		"type": "object",
		"required": ["productName", "username", "userId", "buyer", "wallet", "value"],
		"properties": {
			"productName": {"type": "string", "minLength": 1},
			"username": {"type": "string", "minLength": 1},
			"userId": {"type": "integer", "minimum": 0},
			"buyer": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
			"wallet": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
			"value": {"type": "string", "pattern": "^[0-9]+$"}
		},
		"additionalProperties": false
	}`

	tokenPurchaseSchema = `{
		"type": "object",
		"required": ["productName", "username", "userId", "buyer", "wallet", "amount"],
		"properties": {
			"productName": {"type": "string", "minLength": 1},
			"username": {"type": "string", "minLength": 1},
			"userId": {"type": "integer", "minimum": 0},
			"buyer": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
			"wallet": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
			"amount": {"type": "string", "pattern": "^[0-9]+$"}
		},
		"additionalProperties": false
	}`

	permitPurchaseSchema = `{
		"type": "object",
		"required": ["productName", "username", "userId", "buyer", "wallet", "amount", "deadline", "signature"],
		"properties": {
			"productName": {"type": "string", "minLength": 1},
			"username": {"type": "string", "minLength": 1},
			"userId": {"type": "integer", "minimum": 0},
			"buyer": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
			"wallet": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
			"amount": {"type": "string", "pattern": "^[0-9]+$"},
			"deadline": {"type": "integer"},
			"signature": {"type": "string", "pattern": "^0x[0-9a-fA-F]+$"}
		},
		"additionalProperties": false
	}`
)

// validateBody validates a raw JSON body against a schema. Returns a
// human-readable error listing every violation.
func validateBody(schema string, body []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(body),
	)
	if err != nil {
		return fmt.Errorf("request body is not valid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return fmt.Errorf("invalid request body: %s", strings.Join(errs, "; "))
}

// bindJSON decodes an already schema-validated body into out.
func bindJSON(body []byte, out interface{}) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode request body: %w", err)
	}
	return nil
}
