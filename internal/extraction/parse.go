package extraction

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// stripFences removes markdown code-fence markers some models wrap
// around their JSON payload.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// coerceString renders a payload value as a string; nil becomes "".
func coerceString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(v)
	}
}

// coerceFloat tolerates numbers sent as strings.
func coerceFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// coerceItem normalizes one raw payload entry into an Item. Name falls
// back to the legacy "item" key, quantity is clamped to 1..100, price
// is rounded to cents and is_modifier must be a literal true.
func coerceItem(raw map[string]any) Item {
	name := raw["name"]
	if name == nil {
		name = raw["item"]
	}
	isModifier, _ := raw["is_modifier"].(bool)
	return Item{
		Name:       coerceString(name),
		Quantity:   clamp(int(coerceFloat(raw["quantity"])), 1, 100),
		Price:      round2(coerceFloat(raw["price"])),
		IsModifier: isModifier,
	}
}

// parsePayload decodes the text payload a provider returned into line
// items plus optional receipt metadata. It accepts both the object
// shape {"items": [...], "receipt_total": ..., "restaurant_name": ...}
// and the legacy bare-array shape. Malformed JSON is an error the
// caller recovers from as an empty result.
func parsePayload(text string) (items []Item, receiptTotal *float64, restaurantName string, err error) {
	var parsed any
	if err := json.Unmarshal([]byte(stripFences(text)), &parsed); err != nil {
		return nil, nil, "", fmt.Errorf("unmarshaling payload: %w", err)
	}

	var rawItems []any
	switch v := parsed.(type) {
	case map[string]any:
		arr, ok := v["items"].([]any)
		if !ok {
			return nil, nil, "", fmt.Errorf("payload object has no items array")
		}
		rawItems = arr
		if v["receipt_total"] != nil {
			total := round2(coerceFloat(v["receipt_total"]))
			receiptTotal = &total
		}
		if v["restaurant_name"] != nil {
			restaurantName = strings.TrimSpace(coerceString(v["restaurant_name"]))
		}
	case []any:
		rawItems = v
	default:
		return nil, nil, "", fmt.Errorf("unexpected payload shape %T", parsed)
	}

	items = make([]Item, 0, len(rawItems))
	for _, raw := range rawItems {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, coerceItem(entry))
	}

	return items, receiptTotal, restaurantName, nil
}
