package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONPayload is an opaque JSON document stored as text.
type JSONPayload json.RawMessage

func (p JSONPayload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return string(p), nil
}

func (p *JSONPayload) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*p = nil
	case []byte:
		*p = append((*p)[:0], v...)
	case string:
		*p = JSONPayload(v)
	default:
		return errors.New("JSONPayload.Scan: unsupported column type")
	}
	return nil
}

func (p JSONPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

func (p *JSONPayload) UnmarshalJSON(data []byte) error {
	*p = append((*p)[:0], data...)
	return nil
}

// OrderItems is a helper type for storing order lines as a JSON column.
type OrderItems []OrderItem

func (items OrderItems) Value() (driver.Value, error) {
	if items == nil {
		return "[]", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (items *OrderItems) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*items = nil
		return nil
	case []byte:
		return json.Unmarshal(v, items)
	case string:
		return json.Unmarshal([]byte(v), items)
	default:
		return errors.New("OrderItems.Scan: unsupported column type")
	}
}
