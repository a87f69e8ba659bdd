// Package pathutil implements the flat folder/file addressing scheme used
// by the name server's path index. There is no namespace owner: a folder
// path is just a slash-separated sequence of folder names, and a file
// lives in exactly one folder under a plain name.
package pathutil

import "strings"

// Separator divides folder path components.
const Separator = "/"

// Clean normalizes a folder path: collapses repeated separators, drops a
// trailing separator, and ensures a single leading separator so that the
// root folder is represented as "/".
func Clean(folderPath string) string {
	if folderPath == "" {
		return Separator
	}
	parts := split(folderPath)
	if len(parts) == 0 {
		return Separator
	}
	return Separator + strings.Join(parts, Separator)
}

// Join appends child to a cleaned parent folder path.
func Join(parent, child string) string {
	parts := append(split(parent), split(child)...)
	if len(parts) == 0 {
		return Separator
	}
	return Separator + strings.Join(parts, Separator)
}

// Split returns the non-empty path components of a folder path, e.g.
// "/a/b/c" -> ["a", "b", "c"].
func Split(folderPath string) []string {
	return split(folderPath)
}

// Parent returns the folder path with its last component removed. The
// parent of "/" is "/".
func Parent(folderPath string) string {
	parts := split(folderPath)
	if len(parts) == 0 {
		return Separator
	}
	return Clean(strings.Join(parts[:len(parts)-1], Separator))
}

// Base returns the final component of folderPath, or "" for the root.
func Base(folderPath string) string {
	parts := split(folderPath)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// Key builds the trie lookup key for a file: its cleaned folder path
// followed by the separator and filename, so that distinct folders never
// collide on a shared filename.
func Key(folderPath, filename string) string {
	p := Clean(folderPath)
	if p == Separator {
		return Separator + filename
	}
	return p + Separator + filename
}

func split(p string) []string {
	raw := strings.Split(p, Separator)
	out := make([]string, 0, len(raw))
	for _, part := range raw {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
