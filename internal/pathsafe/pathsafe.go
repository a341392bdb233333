// Package pathsafe resolves user-supplied paths strictly inside a run
// root, following symlinks to their real targets before the containment
// check so a symlink cannot be used to escape the root.
package pathsafe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Error is returned for any containment violation; callers map it to the
// PATH_TRAVERSAL tool error code.
type Error struct {
	Field string
	Input string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("pathsafe: field %q input %q: %s", e.Field, e.Input, e.Msg)
}

// Resolve yields an absolute path p such that:
//
//	(a) if input is relative, it is resolved under runRoot;
//	(b) p lies lexically inside filepath.Clean(runRoot);
//	(c) walking up from p to the first existing ancestor, that ancestor's
//	    symlink-resolved real path also lies inside the symlink-resolved
//	    real path of runRoot.
//
// Any violation returns *Error.
func Resolve(runRoot, input, field string) (string, error) {
	if runRoot == "" {
		return "", &Error{Field: field, Input: input, Msg: "run root is empty"}
	}
	cleanRoot := filepath.Clean(runRoot)
	if !filepath.IsAbs(cleanRoot) {
		return "", &Error{Field: field, Input: input, Msg: "run root must be absolute"}
	}

	var candidate string
	if filepath.IsAbs(input) {
		candidate = filepath.Clean(input)
	} else {
		candidate = filepath.Clean(filepath.Join(cleanRoot, input))
	}

	if !withinLexically(cleanRoot, candidate) {
		return "", &Error{Field: field, Input: input, Msg: "resolves outside run root"}
	}

	realRoot, err := realOrSelf(cleanRoot)
	if err != nil {
		return "", &Error{Field: field, Input: input, Msg: fmt.Sprintf("cannot resolve run root: %v", err)}
	}

	ancestor, err := firstExistingAncestor(candidate)
	if err != nil {
		return "", &Error{Field: field, Input: input, Msg: fmt.Sprintf("cannot stat ancestors: %v", err)}
	}
	realAncestor, err := realOrSelf(ancestor)
	if err != nil {
		return "", &Error{Field: field, Input: input, Msg: fmt.Sprintf("cannot resolve ancestor: %v", err)}
	}
	if !withinLexically(realRoot, realAncestor) {
		return "", &Error{Field: field, Input: input, Msg: "symlink escapes run root"}
	}

	return candidate, nil
}

func withinLexically(root, candidate string) bool {
	if candidate == root {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(candidate, root+sep)
}

func realOrSelf(p string) (string, error) {
	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		if os.IsNotExist(err) {
			return filepath.Clean(p), nil
		}
		return "", err
	}
	return filepath.Clean(real), nil
}

func firstExistingAncestor(p string) (string, error) {
	cur := p
	for {
		_, err := os.Lstat(cur)
		if err == nil {
			return cur, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return cur, nil
		}
		cur = parent
	}
}
