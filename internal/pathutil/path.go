package pathutil

import "strings"

// Delimiter separates the elements of a remote path.
const Delimiter = "/"

// IsRooted reports whether p starts with the delimiter.
func IsRooted(p string) bool {
	return len(p) > 0 && strings.HasPrefix(p, Delimiter)
}

// PathElements splits p into its segments after trimming one leading and all
// trailing delimiters. An empty path yields no elements.
func PathElements(p string) []string {
	p = strings.TrimPrefix(p, Delimiter)
	p = strings.TrimRight(p, Delimiter)
	if p == "" {
		return []string{}
	}
	return strings.Split(p, Delimiter)
}

// DirectoryName returns everything before the last delimiter.
//
// A root-level path such as "/file.txt" yields "", which callers treat as the
// root folder. A path without any delimiter also yields "".
func DirectoryName(p string) string {
	idx := strings.LastIndex(p, Delimiter)
	if idx <= 0 {
		return ""
	}
	return p[:idx]
}

// FileName returns the text after the last delimiter. A path ending in the
// delimiter has no file name.
func FileName(p string) string {
	return p[strings.LastIndex(p, Delimiter)+1:]
}

// Combine joins left and right with exactly one delimiter. If right is empty,
// left is returned untouched.
func Combine(left, right string) string {
	if right == "" {
		return left
	}
	return strings.TrimRight(left, Delimiter) + Delimiter + strings.TrimLeft(right, Delimiter)
}

// ParentOrRoot is DirectoryName with the empty result mapped to the root.
func ParentOrRoot(p string) string {
	dir := DirectoryName(p)
	if dir == "" {
		return Delimiter
	}
	return dir
}

// Normalize turns p into a rooted path without redundant or trailing
// delimiters. It never resolves ".." segments.
func Normalize(p string) string {
	elements := PathElements(p)
	parts := elements[:0]
	for _, el := range elements {
		if el != "" && el != "." {
			parts = append(parts, el)
		}
	}
	return Delimiter + strings.Join(parts, Delimiter)
}
