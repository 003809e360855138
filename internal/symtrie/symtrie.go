// Package symtrie indexes declared symbols by qualified name so symbolic
// references can be resolved regardless of file-processing order. The trie
// is populated with every declaration before any lookup happens; callers
// own that discipline.
package symtrie

import (
	"sort"
	"strings"
	"sync"
)

// Entry is one declared symbol.
type Entry struct {
	QualifiedName string
	Kind          string
}

type node struct {
	children map[string]*node
	// endpoint kind, "" when this node is only a path segment
	kind     string
	terminal bool
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// Trie is a dotted-segment prefix trie with a secondary index on the final
// segment, so suffix lookups avoid a full scan.
type Trie struct {
	mu     sync.RWMutex
	root   *node
	byLeaf map[string]map[string]string // final segment -> qualified name -> kind
	size   int
}

// New returns an empty trie.
func New() *Trie {
	return &Trie{
		root:   newNode(),
		byLeaf: make(map[string]map[string]string),
	}
}

// Len reports the number of indexed symbols.
func (t *Trie) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

// Insert indexes qualifiedName with its kind. Re-inserting an existing name
// updates the kind in place.
func (t *Trie) Insert(qualifiedName, kind string) {
	segments := split(qualifiedName)
	if len(segments) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.root
	for _, seg := range segments {
		child, ok := n.children[seg]
		if !ok {
			child = newNode()
			n.children[seg] = child
		}
		n = child
	}
	if !n.terminal {
		t.size++
	}
	n.terminal = true
	n.kind = kind

	leaf := segments[len(segments)-1]
	if t.byLeaf[leaf] == nil {
		t.byLeaf[leaf] = make(map[string]string)
	}
	t.byLeaf[leaf][qualifiedName] = kind
}

// Delete removes qualifiedName and prunes branches left with no endpoint
// and no children. Unknown names are a no-op.
func (t *Trie) Delete(qualifiedName string) {
	segments := split(qualifiedName)
	if len(segments) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	// Record the path so pruning can walk back up.
	path := make([]*node, 0, len(segments)+1)
	n := t.root
	path = append(path, n)
	for _, seg := range segments {
		child, ok := n.children[seg]
		if !ok {
			return
		}
		n = child
		path = append(path, n)
	}
	if !n.terminal {
		return
	}
	n.terminal = false
	n.kind = ""
	t.size--

	leaf := segments[len(segments)-1]
	if m := t.byLeaf[leaf]; m != nil {
		delete(m, qualifiedName)
		if len(m) == 0 {
			delete(t.byLeaf, leaf)
		}
	}

	for i := len(path) - 1; i > 0; i-- {
		cur := path[i]
		if cur.terminal || len(cur.children) > 0 {
			break
		}
		delete(path[i-1].children, segments[i-1])
	}
}

// Contains reports whether qualifiedName is indexed, returning its kind.
func (t *Trie) Contains(qualifiedName string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.root
	for _, seg := range split(qualifiedName) {
		child, ok := n.children[seg]
		if !ok {
			return "", false
		}
		n = child
	}
	if !n.terminal {
		return "", false
	}
	return n.kind, true
}

// FindWithPrefix collects every symbol whose qualified name starts with the
// given dotted prefix, in sorted order. An empty prefix returns everything.
func (t *Trie) FindWithPrefix(prefix string) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.root
	segments := split(prefix)
	for _, seg := range segments {
		child, ok := n.children[seg]
		if !ok {
			return nil
		}
		n = child
	}

	var out []Entry
	collect(n, strings.Join(segments, "."), &out)
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName < out[j].QualifiedName })
	return out
}

func collect(n *node, path string, out *[]Entry) {
	if n.terminal {
		*out = append(*out, Entry{QualifiedName: path, Kind: n.kind})
	}
	for seg, child := range n.children {
		next := seg
		if path != "" {
			next = path + "." + seg
		}
		collect(child, next, out)
	}
}

// FindEndingWith returns the qualified names whose final segment equals
// suffix, sorted. The leaf index makes this a map lookup; a dotted suffix
// (e.g. "pkg.helper") falls back to scanning the matching leaf's entries.
func (t *Trie) FindEndingWith(suffix string) []string {
	segments := split(suffix)
	if len(segments) == 0 {
		return nil
	}
	leaf := segments[len(segments)-1]

	t.mu.RLock()
	defer t.mu.RUnlock()

	m := t.byLeaf[leaf]
	if len(m) == 0 {
		return nil
	}
	full := strings.Join(segments, ".")
	var out []string
	for qn := range m {
		if qn == full || strings.HasSuffix(qn, "."+full) {
			out = append(out, qn)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve picks the declaration a reference most plausibly targets. name may
// be simple ("helper") or dotted ("utils.helper"). Among the candidates that
// end with name, the one sharing the longest dotted prefix with fromQN wins;
// ties break lexicographically for determinism.
func (t *Trie) Resolve(fromQN, name string) (string, bool) {
	candidates := t.FindEndingWith(name)
	switch len(candidates) {
	case 0:
		return "", false
	case 1:
		return candidates[0], true
	}
	fromSegs := split(fromQN)
	best, bestScore := "", -1
	for _, qn := range candidates {
		score := commonPrefixLen(fromSegs, split(qn))
		if score > bestScore {
			best, bestScore = qn, score
		}
	}
	return best, true
}

func commonPrefixLen(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func split(qn string) []string {
	if qn == "" {
		return nil
	}
	return strings.Split(qn, ".")
}
