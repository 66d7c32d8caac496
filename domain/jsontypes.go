package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/fundwit/go-commons/types"
)

// StringList is a string slice persisted as a json array in a TEXT column.
type StringList []string

// IDList is an ordered id set persisted as a json array in a TEXT column.
type IDList []types.ID

// JSONMap is free-form metadata persisted as a json object in a TEXT column.
type JSONMap map[string]interface{}

func (t StringList) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	return jsonValue(t)
}

func (t *StringList) Scan(v interface{}) error {
	return jsonScan(v, t)
}

// Contains reports whether s is in the list.
func (t StringList) Contains(s string) bool {
	for _, v := range t {
		if v == s {
			return true
		}
	}
	return false
}

func (t IDList) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	return jsonValue(t)
}

func (t *IDList) Scan(v interface{}) error {
	return jsonScan(v, t)
}

func (t IDList) Contains(id types.ID) bool {
	for _, v := range t {
		if v == id {
			return true
		}
	}
	return false
}

func (t JSONMap) Value() (driver.Value, error) {
	if t == nil {
		return "{}", nil
	}
	return jsonValue(t)
}

func (t *JSONMap) Scan(v interface{}) error {
	return jsonScan(v, t)
}

// String returns the value under key when it is a string.
func (t JSONMap) String(key string) string {
	if t == nil {
		return ""
	}
	s, _ := t[key].(string)
	return s
}

func jsonValue(v interface{}) (driver.Value, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func jsonScan(v interface{}, dest interface{}) error {
	if v == nil {
		return nil
	}
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	if jsonString == "" {
		return nil
	}
	return json.Unmarshal([]byte(jsonString), dest)
}
