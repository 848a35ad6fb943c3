package enhanced

// Visitor is called for every node in pre-order together with its direct parent (nil for the
// root). Returning false stops the walk.
type Visitor func(node, parent *Node) bool

// Walk visits the subtree rooted at n. It reports whether the walk ran to completion.
func (n *Node) Walk(fn Visitor) bool {
	return walk(n, nil, fn)
}

func walk(node, parent *Node, fn Visitor) bool {
	if node == nil {
		return true
	}

	if !fn(node, parent) {
		return false
	}

	switch node.Kind {
	case KindArray:
		for _, item := range node.Items {
			if !walk(item, node, fn) {
				return false
			}
		}
	case KindObject:
		for _, key := range node.Keys() {
			if !walk(node.Fields[key], node, fn) {
				return false
			}
		}
	case KindLeaf:
	}

	return true
}

// FindByID returns the node whose identity is id, or nil when no such node exists below root.
func FindByID(root *Node, id string) *Node {
	if root == nil || id == "" {
		return nil
	}

	var found *Node

	root.Walk(func(node, _ *Node) bool {
		if node.ID == id {
			found = node

			return false
		}

		return true
	})

	return found
}

// FindParent returns the nearest identity-bearing ancestor that directly holds the node with
// the given id, either as an array item or as an object field. The root itself has no parent.
func FindParent(root *Node, id string) *Node {
	if root == nil || id == "" {
		return nil
	}

	var found *Node

	root.Walk(func(node, parent *Node) bool {
		if node.ID == id {
			found = parent

			return false
		}

		return true
	})

	if found == nil || found.ID == "" {
		return nil
	}

	return found
}

// RemoveByID detaches the node with the given id from its parent: array items are spliced out,
// object fields are deleted. It reports whether a node was removed.
func RemoveByID(root *Node, id string) bool {
	parent := FindParent(root, id)
	if parent == nil {
		return false
	}

	switch parent.Kind {
	case KindArray:
		for i, item := range parent.Items {
			if item != nil && item.ID == id {
				parent.Items = append(parent.Items[:i:i], parent.Items[i+1:]...)

				return true
			}
		}
	case KindObject:
		for key, child := range parent.Fields {
			if child != nil && child.ID == id {
				delete(parent.Fields, key)

				return true
			}
		}
	case KindLeaf:
	}

	return false
}

// IDs returns every identity in the subtree in pre-order.
func IDs(root *Node) []string {
	var ids []string

	root.Walk(func(node, _ *Node) bool {
		ids = append(ids, node.ID)

		return true
	})

	return ids
}
