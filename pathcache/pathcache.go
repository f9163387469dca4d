// Package pathcache holds the in-memory derived state SFS rebuilds after
// every mutation: a map from normalized path to its entry, and a map
// from directory path to the set of its immediate child names.
package pathcache

import (
	"strings"

	"github.com/KarpelesLab/sfs/entry"
)

// Cache is the rebuilt-after-every-mutation path index described in
// SPEC_FULL.md §6. It is intentionally dumb: Build does a full scan
// every time it's called, trading incremental-update bugs for a simple,
// always-correct invariant.
type Cache struct {
	ByPath     map[string]entry.Entry
	ChildrenOf map[string]map[string]bool
}

// Normalize strips a leading '/' and rewrites backslashes to forward
// slashes, so that "/a\\b" and "a/b" refer to the same path. The empty
// string denotes the root directory.
func Normalize(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.TrimPrefix(path, "/")
}

// Build scans entries and returns a fresh Cache. Only live DIR and FILE
// entries contribute; UNUSED, START, VOL_ID and any tombstone are
// invisible to the path cache.
func Build(entries []entry.Entry) *Cache {
	c := &Cache{
		ByPath:     make(map[string]entry.Entry),
		ChildrenOf: make(map[string]map[string]bool),
	}
	c.ChildrenOf[""] = make(map[string]bool)

	for _, e := range entries {
		if !e.Kind.IsLive() {
			continue
		}
		p := Normalize(e.Name)
		c.ByPath[p] = e

		parent, name := splitPath(p)
		if _, ok := c.ChildrenOf[parent]; !ok {
			c.ChildrenOf[parent] = make(map[string]bool)
		}
		c.ChildrenOf[parent][name] = true
	}

	return c
}

// splitPath divides a normalized path into its parent directory path and
// final component. splitPath("a/b/c") == ("a/b", "c");
// splitPath("a") == ("", "a").
func splitPath(p string) (parent, name string) {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i], p[i+1:]
	}
	return "", p
}

// List returns the sorted-by-nothing-in-particular set of immediate
// child names of dir (normalized). It never returns nil: an unknown or
// empty directory yields an empty slice.
func (c *Cache) List(dir string) []string {
	children := c.ChildrenOf[Normalize(dir)]
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	return names
}

// IsEmpty reports whether dir has no immediate FILE or DIR child in
// ChildrenOf. A deeper path under dir whose intermediate directory has
// no entry of its own is not counted.
func (c *Cache) IsEmpty(dir string) bool {
	return len(c.ChildrenOf[Normalize(dir)]) == 0
}
