package model

import (
	"math"
)

// cleanJSONData recursively cleans data to ensure it's JSON serializable
func cleanJSONData(data map[string]any) map[string]any {
	cleaned := make(map[string]any, len(data))
	for k, v := range data {
		cleaned[k] = cleanJSONValue(v)
	}
	return cleaned
}

func cleanJSONSlice(slice []any) []any {
	cleaned := make([]any, len(slice))
	for i, v := range slice {
		cleaned[i] = cleanJSONValue(v)
	}
	return cleaned
}

func cleanJSONValue(v any) any {
	switch val := v.(type) {
	case float64:
		// NaN and Inf can't be JSON serialized
		if math.IsInf(val, 0) || math.IsNaN(val) {
			return nil
		}
		return val
	case error:
		return val.Error()
	case map[string]any:
		return cleanJSONData(val)
	case []any:
		return cleanJSONSlice(val)
	default:
		return v
	}
}

// MarshalDetails cleans error log details and encodes them as JSON.
// A nil or empty map encodes to nil so the column stays NULL.
func MarshalDetails(details map[string]any) ([]byte, error) {
	if len(details) == 0 {
		return nil, nil
	}
	return json.Marshal(cleanJSONData(details))
}

// UnmarshalDetails decodes a stored details document.
func UnmarshalDetails(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var details map[string]any
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, err
	}
	return details, nil
}
