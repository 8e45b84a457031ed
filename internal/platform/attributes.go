package platform

import (
	"encoding/json"
	"fmt"
)

// RGB is a color as three 0-255 channels.
type RGB [3]int

func (c RGB) String() string {
	return fmt.Sprintf("(%d, %d, %d)", c[0], c[1], c[2])
}

// Attributes holds entity attributes as decoded from the platform.
// Values may be nil when the platform reports the attribute as absent.
type Attributes map[string]any

// Int returns an integer attribute. The second result is false when the
// attribute is missing, nil or not numeric.
func (a Attributes) Int(key string) (int, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, false
	}
	return toInt(v)
}

// IntPtr returns an integer attribute as a pointer, nil when absent.
func (a Attributes) IntPtr(key string) *int {
	v, ok := a.Int(key)
	if !ok {
		return nil
	}
	return &v
}

// RGB returns a color attribute encoded as a three element list.
func (a Attributes) RGB(key string) (RGB, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return RGB{}, false
	}

	switch val := v.(type) {
	case RGB:
		return val, true
	case *RGB:
		if val == nil {
			return RGB{}, false
		}
		return *val, true
	case []int:
		if len(val) != 3 {
			return RGB{}, false
		}
		return RGB{val[0], val[1], val[2]}, true
	case []any:
		if len(val) != 3 {
			return RGB{}, false
		}
		var rgb RGB
		for i, c := range val {
			n, ok := toInt(c)
			if !ok {
				return RGB{}, false
			}
			rgb[i] = n
		}
		return rgb, true
	}
	return RGB{}, false
}

// RGBPtr returns a color attribute as a pointer, nil when absent.
func (a Attributes) RGBPtr(key string) *RGB {
	v, ok := a.RGB(key)
	if !ok {
		return nil
	}
	return &v
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil {
			return int(f), true
		}
	}
	return 0, false
}
