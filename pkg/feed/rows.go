package feed

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ErrMissingColumn is returned when a required header is absent
var ErrMissingColumn = errors.New("missing required field in header")

// column is one `feed` tagged struct field
type column struct {
	field    int
	headers  []string
	required bool
}

// parseTag reads `feed:"name|alias,required"`
func parseTag(tag string) ([]string, bool) {
	parts := strings.Split(tag, ",")
	headers := make([]string, 0)
	for _, h := range strings.Split(parts[0], "|") {
		if h = strings.TrimSpace(h); h != "" {
			headers = append(headers, h)
		}
	}
	required := false
	for _, opt := range parts[1:] {
		if strings.TrimSpace(opt) == "required" {
			required = true
		}
	}
	return headers, required
}

// Decode maps header-indexed rows onto structs of type T using `feed` struct tags.
// The first row is the header; header matching is case-insensitive. Rows whose mapped
// cells are all empty are skipped.
func Decode[T any](raw [][]interface{}) ([]T, error) {
	if len(raw) < 1 {
		return nil, fmt.Errorf("no header row found")
	}

	var model T
	t := reflect.TypeOf(model)
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("decode target must be a struct, got %s", t.Kind())
	}

	headerIndex := make(map[string]int)
	for i, cell := range raw[0] {
		header := strings.ToLower(strings.TrimSpace(fmt.Sprint(cell)))
		if _, exists := headerIndex[header]; !exists {
			headerIndex[header] = i
		}
	}

	// Build mapping of struct fields to column indexes
	columns := make(map[int]column)
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("feed")
		if tag == "" {
			continue
		}
		headers, required := parseTag(tag)
		index := -1
		for _, h := range headers {
			if idx, ok := headerIndex[strings.ToLower(h)]; ok {
				index = idx
				break
			}
		}
		if index == -1 {
			if required {
				return nil, fmt.Errorf("%w: %s", ErrMissingColumn, headers[0])
			}
			continue
		}
		columns[index] = column{field: i, headers: headers, required: required}
	}

	results := make([]T, 0, len(raw)-1)
	for rowIdx := 1; rowIdx < len(raw); rowIdx++ {
		row := raw[rowIdx]
		result := reflect.New(t).Elem()

		empty := true
		for colIdx, col := range columns {
			if colIdx >= len(row) || row[colIdx] == nil {
				continue
			}
			cell := strings.TrimSpace(fmt.Sprint(row[colIdx]))
			if cell == "" {
				continue
			}
			empty = false

			if err := setFieldValue(result.Field(col.field), cell); err != nil {
				return nil, fmt.Errorf("row %d, column %s: %w", rowIdx+1, col.headers[0], err)
			}
		}

		if empty {
			continue
		}
		results = append(results, result.Interface().(T))
	}

	return results, nil
}

// setFieldValue converts a cell to the field's type and sets it
func setFieldValue(field reflect.Value, cell string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(cell)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intVal, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse int: %w", err)
		}
		field.SetInt(intVal)

	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", "."), 64)
		if err != nil {
			return fmt.Errorf("failed to parse float: %w", err)
		}
		field.SetFloat(floatVal)

	case reflect.Bool:
		boolVal, err := strconv.ParseBool(cell)
		if err != nil {
			return fmt.Errorf("failed to parse bool: %w", err)
		}
		field.SetBool(boolVal)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}
