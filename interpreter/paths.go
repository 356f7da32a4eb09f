package interpreter

import "strings"

// parentPath returns the path of the enclosing state, or "" at the top level.
func parentPath(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx == -1 {
		return ""
	}
	return path[:idx]
}

func depth(path string) int {
	return strings.Count(path, ".")
}

// isDescendant reports whether path lies strictly inside ancestor.
// Every path is a descendant of the root ("").
func isDescendant(path, ancestor string) bool {
	if ancestor == "" {
		return path != ""
	}
	return strings.HasPrefix(path, ancestor+".")
}

// getAncestors returns all ancestor paths of a path, outermost first,
// including the path itself.
func getAncestors(path string) []string {
	segments := strings.Split(path, ".")
	ancestors := make([]string, len(segments))

	current := ""
	for i, seg := range segments {
		if current != "" {
			current += "."
		}
		current += seg
		ancestors[i] = current
	}
	return ancestors
}

// commonAncestor returns the longest shared path prefix of a and b.
func commonAncestor(a, b string) string {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	n := 0
	for n < len(as) && n < len(bs) && as[n] == bs[n] {
		n++
	}
	return strings.Join(as[:n], ".")
}
