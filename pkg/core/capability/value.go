package capability

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Value is a worker's standing for one (capability, resource type) pair.
// It is a closed set: every I/O boundary converts through ParseValue.
type Value int8

const (
	// Excluded is a hard veto
	Excluded Value = -1
	// Inactive means the worker is not assigned this capability
	Inactive Value = 0
	// Active means the worker performs this capability
	Active Value = 1
	// Weighted means the worker performs this capability only when a rule explicitly
	// schedules them into it, and it counts with extra fairness weight
	Weighted Value = 2
)

// Eligible reports whether the value permits assignment
func (v Value) Eligible() bool {
	return v != Excluded
}

// Performs reports whether the worker actively performs the capability
func (v Value) Performs() bool {
	return v == Active || v == Weighted
}

// String renders the value in its external form: -1, 0, 1 or w
func (v Value) String() string {
	switch v {
	case Excluded:
		return "-1"
	case Inactive:
		return "0"
	case Active:
		return "1"
	case Weighted:
		return "w"
	default:
		return fmt.Sprintf("invalid(%d)", int8(v))
	}
}

// ParseValue converts an externally supplied cell into a Value.
// Accepted forms: -1, 0, 1 as integers, floats or strings, "w" for weighted, and booleans.
// Empty strings and nil are Inactive.
func ParseValue(raw interface{}) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Inactive, nil
	case Value:
		if v < Excluded || v > Weighted {
			return Inactive, fmt.Errorf("invalid capability value %d", int8(v))
		}
		return v, nil
	case bool:
		if v {
			return Active, nil
		}
		return Inactive, nil
	case int:
		return validate(int64(v))
	case int64:
		return validate(v)
	case float64:
		if v != math.Trunc(v) {
			return Inactive, fmt.Errorf("invalid capability value %v", v)
		}
		return validate(int64(v))
	case string:
		return parseString(v)
	default:
		return Inactive, fmt.Errorf("unsupported capability value type %T", raw)
	}
}

func parseString(s string) (Value, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	switch trimmed {
	case "":
		return Inactive, nil
	case "w":
		return Weighted, nil
	case "true":
		return Active, nil
	case "false":
		return Inactive, nil
	}

	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return Inactive, fmt.Errorf("invalid capability value %q", s)
	}
	return ParseValue(f)
}

func validate(n int64) (Value, error) {
	switch n {
	case -1:
		return Excluded, nil
	case 0:
		return Inactive, nil
	case 1:
		return Active, nil
	}
	return Inactive, fmt.Errorf("invalid capability value %d", n)
}

// MarshalJSON writes numbers for -1/0/1 and the string "w" for weighted
func (v Value) MarshalJSON() ([]byte, error) {
	if v == Weighted {
		return json.Marshal("w")
	}
	return json.Marshal(int8(v))
}

// UnmarshalJSON accepts any form understood by ParseValue
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseValue(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// UnmarshalYAML accepts any scalar form understood by ParseValue
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: capability value must be a scalar", node.Line)
	}
	parsed, err := parseString(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*v = parsed
	return nil
}

// MarshalYAML mirrors MarshalJSON
func (v Value) MarshalYAML() (interface{}, error) {
	if v == Weighted {
		return "w", nil
	}
	return int(v), nil
}
