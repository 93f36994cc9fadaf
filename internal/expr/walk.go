package expr

import "iter"

// Preorder yields root and its descendants in pre-order. The sequence can be
// ranged over any number of times.
func Preorder(root Node) iter.Seq[Node] {
	return func(yield func(Node) bool) {
		preorder(root, yield)
	}
}

func preorder(n Node, yield func(Node) bool) bool {
	if n == nil {
		return true
	}
	if !yield(n) {
		return false
	}
	for _, c := range n.Children() {
		if !preorder(c, yield) {
			return false
		}
	}
	return true
}

// Visitor is called for every node with the chain of its ancestors, outermost
// first. Returning false skips the node's children.
type Visitor func(n Node, ancestry []Node) bool

// Walk visits root in pre-order. The ancestry slice is only valid for the
// duration of the call.
func Walk(root Node, fn Visitor) {
	walk(root, nil, fn)
}

func walk(n Node, ancestry []Node, fn Visitor) {
	if n == nil {
		return
	}
	if !fn(n, ancestry) {
		return
	}
	ancestry = append(ancestry, n)
	for _, c := range n.Children() {
		walk(c, ancestry, fn)
	}
}

// Contains reports whether target is root or one of its descendants, by
// identity.
func Contains(root, target Node) bool {
	for n := range Preorder(root) {
		if n == target {
			return true
		}
	}
	return false
}

// Columns returns the column references under root in pre-order.
func Columns(root Node) []*Column {
	var cols []*Column
	for n := range Preorder(root) {
		if c, ok := n.(*Column); ok {
			cols = append(cols, c)
		}
	}
	return cols
}
