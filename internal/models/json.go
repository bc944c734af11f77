package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON type for flexible storage
type JSON map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (j *JSON) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", value)
	}
	if len(bytes) == 0 {
		*j = nil
		return nil
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*j = m
	return nil
}

// Merge returns a copy of j with the entries of other applied on top.
func (j JSON) Merge(other map[string]interface{}) JSON {
	out := make(JSON, len(j)+len(other))
	for k, v := range j {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// String returns the string value stored under key, or "".
func (j JSON) String(key string) string {
	if v, ok := j[key].(string); ok {
		return v
	}
	return ""
}
