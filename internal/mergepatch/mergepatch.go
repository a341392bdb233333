// Package mergepatch implements RFC 7396 JSON Merge Patch over generic
// map[string]interface{} documents: null deletes a key, objects recurse,
// and any other value (including arrays) replaces wholesale.
package mergepatch

// Apply returns a new document with patch merged onto target per RFC 7396.
// Neither input is mutated.
func Apply(target, patch interface{}) interface{} {
	patchObj, ok := patch.(map[string]interface{})
	if !ok {
		return patch
	}
	targetObj, ok := target.(map[string]interface{})
	if !ok {
		targetObj = map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(targetObj))
	for k, v := range targetObj {
		out[k] = v
	}
	for k, v := range patchObj {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = Apply(out[k], v)
	}
	return out
}

// TouchedPaths walks patch and returns the set of dotted top-level-and-below
// field paths it would modify, used to reject patches touching immutable
// fields before Apply runs.
func TouchedPaths(patch interface{}, prefix string) []string {
	obj, ok := patch.(map[string]interface{})
	if !ok {
		if prefix == "" {
			return nil
		}
		return []string{prefix}
	}
	var paths []string
	for k, v := range obj {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		paths = append(paths, path)
		paths = append(paths, TouchedPaths(v, path)...)
	}
	return paths
}
