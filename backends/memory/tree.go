package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ebogdum/cloudbox/internal/pathutil"
)

type node struct {
	dir      bool
	data     []byte
	modified time.Time
}

// Tree is the shared backing store of memory sessions. Several providers
// opened on the same Tree see the same content.
type Tree struct {
	mu    sync.RWMutex
	nodes map[string]*node
	now   func() time.Time
}

// NewTree creates a tree that holds only the root folder
func NewTree() *Tree {
	t := &Tree{
		nodes: make(map[string]*node),
		now:   time.Now,
	}
	t.nodes[pathutil.Delimiter] = &node{dir: true, modified: t.now()}
	return t
}

// MkdirAll creates p and its missing parents. It is meant for seeding trees.
func (t *Tree) MkdirAll(p string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := pathutil.Delimiter
	for _, el := range pathutil.PathElements(pathutil.Normalize(p)) {
		current = pathutil.Combine(current, el)
		if _, exists := t.nodes[current]; !exists {
			t.nodes[current] = &node{dir: true, modified: t.now()}
		}
	}
}

// WriteFile stores data at p, creating parent folders as needed.
func (t *Tree) WriteFile(p string, data []byte) {
	p = pathutil.Normalize(p)
	t.MkdirAll(pathutil.ParentOrRoot(p))

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[p] = &node{data: append([]byte(nil), data...), modified: t.now()}
}

// ReadFile returns a copy of the content at p
func (t *Tree) ReadFile(p string) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, exists := t.nodes[pathutil.Normalize(p)]
	if !exists || n.dir {
		return nil, false
	}
	return append([]byte(nil), n.data...), true
}

// Exists reports whether p is present
func (t *Tree) Exists(p string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, exists := t.nodes[pathutil.Normalize(p)]
	return exists
}

// Paths lists every path in the tree except the root, sorted.
func (t *Tree) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	paths := make([]string, 0, len(t.nodes))
	for p := range t.nodes {
		if p != pathutil.Delimiter {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

func (t *Tree) get(p string) (*node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, exists := t.nodes[p]
	return n, exists
}

func (t *Tree) children(dir string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var names []string
	for p := range t.nodes {
		if p != pathutil.Delimiter && pathutil.ParentOrRoot(p) == dir {
			names = append(names, p)
		}
	}
	sort.Strings(names)
	return names
}

// subtree returns p and every path below it. Caller must hold the lock.
func (t *Tree) subtree(p string) []string {
	prefix := strings.TrimSuffix(p, pathutil.Delimiter) + pathutil.Delimiter
	paths := []string{p}
	for candidate := range t.nodes {
		if strings.HasPrefix(candidate, prefix) {
			paths = append(paths, candidate)
		}
	}
	return paths
}
