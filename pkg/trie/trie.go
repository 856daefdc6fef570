// Package trie merges hydrated logs into a shared-prefix tree and assigns
// each node a proportional [0,1) interval for space-filling rendering.
//
// Logs sharing a turn-for-turn prefix share a path and split into distinct
// children at the first differing turn. This is the same divergence concept
// as pkg/branch expressed as a tree: the pairwise divergence point between
// two logs equals the depth at which their trie paths split.
//
// Nodes live in a flat arena addressed by integer index rather than a
// pointer-linked tree. Child order is insertion-order independent: layout
// reorders each node's children, and traversal follows interval order.
package trie

import (
	"slices"
	"sort"

	"github.com/papercomputeco/spool/pkg/catalog"
)

// Node is one merged turn in the trie arena.
type Node struct {
	// Key is the composite merge key: role plus normalized text. Empty for
	// the virtual root.
	Key string `json:"key"`

	// Role and Text come from the first message merged into this node.
	Role string `json:"role,omitempty"`
	Text string `json:"text,omitempty"`

	// Depth is the turn ordinal, -1 for the virtual root.
	Depth int `json:"depth"`

	// LogNames lists every log whose path passes through this node.
	LogNames []string `json:"log_names,omitempty"`

	// Children are arena indices, held in interval order after layout.
	Children []int `json:"children,omitempty"`

	// Representative is one concrete message used for display.
	Representative catalog.Message `json:"representative"`

	// Start and End bound this node's layout interval within [0,1).
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Tree is a built and laid-out trie. Flatten gives the render list.
type Tree struct {
	// Nodes is the arena. Index 0 is always the virtual root.
	Nodes []Node `json:"nodes"`

	// Root is the arena index layout and traversal start from. It is the
	// virtual root unless the tree was re-rooted onto a focus log's
	// deepest branch point.
	Root int `json:"root"`

	// MaxDepth is the deepest turn ordinal reachable from Root, -1 when
	// the tree holds no logs.
	MaxDepth int `json:"max_depth"`

	// DepthOffset is the re-rooted node's depth, for renderers that want
	// depths relative to the visible root. Zero without re-rooting.
	DepthOffset int `json:"depth_offset"`
}

type config struct {
	active string
	focus  string
}

// Option configures Build.
type Option func(*config)

// WithActiveLog marks one log as active: at every node, the child carrying
// it sorts first.
func WithActiveLog(name string) Option {
	return func(c *config) { c.active = name }
}

// WithFocus re-roots the tree at the deepest branch point along the named
// log's path, so a renderer can explore that log's neighborhood as if it
// were the whole tree.
func WithFocus(name string) Option {
	return func(c *config) { c.focus = name }
}

// Build constructs the trie from hydrated entries and lays it out.
// Un-hydrated and empty entries are skipped.
func Build(entries []*catalog.Entry, opts ...Option) *Tree {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	t := &Tree{MaxDepth: -1}
	byKey := []map[string]int{}

	newNode := func(key string, depth int) int {
		t.Nodes = append(t.Nodes, Node{Key: key, Depth: depth})
		byKey = append(byKey, make(map[string]int))
		return len(t.Nodes) - 1
	}

	root := newNode("", -1)

	for _, entry := range entries {
		if !entry.Hydrated || len(entry.Messages) == 0 {
			continue
		}

		node := root
		t.Nodes[root].LogNames = append(t.Nodes[root].LogNames, entry.Name)

		for i := range entry.Messages {
			msg := &entry.Messages[i]
			key := msg.Role + "\x00" + msg.NormalizedText()

			child, ok := byKey[node][key]
			if !ok {
				child = newNode(key, msg.Ordinal)
				t.Nodes[child].Role = msg.Role
				t.Nodes[child].Text = msg.Text
				t.Nodes[child].Representative = *msg
				t.Nodes[node].Children = append(t.Nodes[node].Children, child)
				byKey[node][key] = child
			}

			t.Nodes[child].LogNames = append(t.Nodes[child].LogNames, entry.Name)
			node = child
		}
	}

	t.Root = root
	if cfg.focus != "" {
		t.Root = t.branchPointFor(cfg.focus)
		if depth := t.Nodes[t.Root].Depth; depth > 0 {
			t.DepthOffset = depth
		}
	}

	t.layout(t.Root, 0, 1, cfg.active)
	return t
}

// branchPointFor walks the focus log's path from the virtual root and
// returns the deepest node on it with more than one child. Falls back to
// the virtual root when the log is unknown or its path never branches.
func (t *Tree) branchPointFor(focus string) int {
	node, best := 0, 0

	for {
		if len(t.Nodes[node].Children) > 1 {
			best = node
		}
		next := -1
		for _, c := range t.Nodes[node].Children {
			if slices.Contains(t.Nodes[c].LogNames, focus) {
				next = c
				break
			}
		}
		if next < 0 {
			return best
		}
		node = next
	}
}

// layout assigns the node its interval, orders its children (active-first,
// then descending log count, then key for determinism), and recurses with
// sub-intervals sized proportionally to each child's log count relative to
// the sibling total. The last child absorbs rounding so children always
// tile the parent exactly.
func (t *Tree) layout(idx int, start, end float64, active string) {
	n := &t.Nodes[idx]
	n.Start, n.End = start, end
	if n.Depth > t.MaxDepth {
		t.MaxDepth = n.Depth
	}

	children := n.Children
	sort.SliceStable(children, func(i, j int) bool {
		a, b := &t.Nodes[children[i]], &t.Nodes[children[j]]
		if active != "" {
			aActive := slices.Contains(a.LogNames, active)
			bActive := slices.Contains(b.LogNames, active)
			if aActive != bActive {
				return aActive
			}
		}
		if len(a.LogNames) != len(b.LogNames) {
			return len(a.LogNames) > len(b.LogNames)
		}
		return a.Key < b.Key
	})

	total := 0
	for _, c := range children {
		total += len(t.Nodes[c].LogNames)
	}
	if total == 0 {
		return
	}

	span := end - start
	cursor := start
	for i, c := range children {
		childEnd := cursor + span*float64(len(t.Nodes[c].LogNames))/float64(total)
		if i == len(children)-1 {
			childEnd = end
		}
		t.layout(c, cursor, childEnd, active)
		cursor = childEnd
	}
}

// Flatten returns the subtree under Root as a depth-ordered pre-order list,
// children visited in interval order. The virtual root is excluded; a
// re-rooted concrete node is included.
func (t *Tree) Flatten() []*Node {
	var out []*Node

	var walk func(int)
	walk = func(idx int) {
		if t.Nodes[idx].Depth >= 0 {
			out = append(out, &t.Nodes[idx])
		}
		for _, c := range t.Nodes[idx].Children {
			walk(c)
		}
	}
	walk(t.Root)

	return out
}

// RootNode returns the node layout started from.
func (t *Tree) RootNode() *Node {
	return &t.Nodes[t.Root]
}
