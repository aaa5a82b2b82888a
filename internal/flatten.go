package internal

import "strconv"

// Flatten returns the leaves of a decoded JSON object keyed by their dotted path:
// {"repository": {"name": "infra"}} becomes {"repository.name": "infra"}. Arrays are
// kept whole under "path" and "path[]", and each element is flattened under "path[i]".
func Flatten(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		flattenInto(out, key, value)
	}
	return out
}

func flattenInto(out map[string]interface{}, path string, value interface{}) {
	switch typed := value.(type) {
	case map[string]interface{}:
		if len(typed) == 0 {
			out[path] = typed
			return
		}
		for key, child := range typed {
			flattenInto(out, path+"."+key, child)
		}
	case []interface{}:
		out[path] = typed
		out[path+"[]"] = typed
		for i, child := range typed {
			flattenInto(out, path+"["+strconv.Itoa(i)+"]", child)
		}
	default:
		out[path] = value
	}
}
