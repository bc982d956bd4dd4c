package entities

import (
	"encoding/json"
	"fmt"
)

// Validatable is implemented by every wire object; Validate enforces the
// schema rules (required fields, enumerated string domains, constant tags).
type Validatable interface {
	Validate() error
}

// ToJSON encodes a wire object canonically: schema-validated, null-valued
// optionals omitted, _ObjectType tags emitted.
func ToJSON(v Validatable) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return raw, nil
}

// FromJSON decodes a wire object and schema-validates it. Unknown enum
// values and missing required fields are rejected.
func FromJSON(raw []byte, v Validatable) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return v.Validate()
}
