package driver

import "encoding/json"

// parsePermissiveJSON decodes a JSON object permissively per spec §9:
// a decode failure or a non-object top level yields an empty map rather
// than an error, so a malformed response degrades to "all fields
// absent" instead of aborting the round.
func parsePermissiveJSON(s string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return map[string]any{}
	}
	return obj
}

func stringField(obj map[string]any, key string) string {
	v, ok := obj[key].(string)
	if !ok {
		return ""
	}
	return v
}

func intField(obj map[string]any, key string) int {
	switch v := obj[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func boolField(obj map[string]any, key string) bool {
	v, _ := obj[key].(bool)
	return v
}
