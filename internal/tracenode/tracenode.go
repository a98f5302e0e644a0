// Package tracenode implements the hierarchical trace identifiers attached
// to log records so an operator can reconstruct the causal chain of a task
// (schedule -> backup -> repository -> engine invocation).
package tracenode

import (
	"strings"

	"github.com/google/uuid"
)

// Node is a parent-linked name with a unique suffix, grounded on
// original_source/treenodes.py's TreeNode.
type Node struct {
	name   string
	parent *Node
}

// Root creates a new top-level trace node.
func Root(name string) *Node {
	return &Node{name: format(name)}
}

// Extend creates a child node whose name is suffixed with a fresh unique id.
func (n *Node) Extend(name string) *Node {
	return &Node{name: format(name), parent: n}
}

func format(name string) string {
	return name + "(" + uuid.NewString() + ")"
}

// Chain returns the ordered list of node names from root to this node.
func (n *Node) Chain() []string {
	if n == nil {
		return nil
	}
	if n.parent == nil {
		return []string{n.name}
	}
	return append(n.parent.Chain(), n.name)
}

// String renders the node as "root > child > grandchild".
func (n *Node) String() string {
	if n == nil {
		return ""
	}
	return strings.Join(n.Chain(), " > ")
}
