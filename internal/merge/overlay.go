package merge

import "strings"

// node is one path component of the overlay. Removing a node tombstones
// its whole subtree; putting it back resurrects the path.
type node struct {
	entry    *Entry
	children map[string]*node
	// link is the entry a hardlink resolved to when it was read.
	link *Entry
}

func (n *node) isDir() bool {
	return n.entry.Kind == Directory
}

type overlay struct {
	root *node
}

func newOverlay() *overlay {
	return &overlay{root: &node{entry: synthesizedDir(""), children: make(map[string]*node)}}
}

func (o *overlay) lookup(path string) *node {
	cur := o.root
	for _, c := range strings.Split(path, "/") {
		if cur.children == nil {
			return nil
		}
		next, ok := cur.children[c]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// parent returns the directory node holding path and the final component,
// or nil when the parent does not exist or is not a directory.
func (o *overlay) parent(path string) (*node, string) {
	dir, base := "", path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		dir, base = path[:i], path[i+1:]
	}
	if dir == "" {
		return o.root, base
	}
	n := o.lookup(dir)
	if n == nil || !n.isDir() {
		return nil, base
	}
	return n, base
}

// remove deletes path and everything beneath it.
func (o *overlay) remove(path string) bool {
	p, base := o.parent(path)
	if p == nil {
		return false
	}
	if _, ok := p.children[base]; !ok {
		return false
	}
	delete(p.children, base)
	return true
}

// clear deletes every child of the directory at path. The directory itself
// is kept.
func (o *overlay) clear(path string) {
	n := o.root
	if path != "" {
		n = o.lookup(path)
	}
	if n == nil || !n.isDir() {
		return
	}
	n.children = make(map[string]*node)
}

// put stores e, creating missing parents and replacing non-directories
// that are in the way. A directory replacing a directory keeps its
// children; anything else replacing an entry drops its subtree.
func (o *overlay) put(e *Entry, link *Entry) {
	parts := strings.Split(e.Path, "/")
	cur := o.root
	for i, c := range parts[:len(parts)-1] {
		child := cur.children[c]
		if child == nil || !child.isDir() {
			child = &node{
				entry:    synthesizedDir(strings.Join(parts[:i+1], "/")),
				children: make(map[string]*node),
			}
			cur.children[c] = child
		}
		cur = child
	}

	leaf := parts[len(parts)-1]
	existing := cur.children[leaf]
	if e.Kind == Directory && existing != nil && existing.isDir() {
		existing.entry = e
		return
	}

	n := &node{entry: e, link: link}
	if e.Kind == Directory {
		n.children = make(map[string]*node)
	}
	cur.children[leaf] = n
}

// walk visits every node except the root.
func (o *overlay) walk(fn func(*node)) {
	var visit func(*node)
	visit = func(n *node) {
		for _, child := range n.children {
			fn(child)
			visit(child)
		}
	}
	visit(o.root)
}
