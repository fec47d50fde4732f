package freeblocks

// blockTree is an unbalanced binary search tree keyed by block size.
// Same-sized blocks chain off one node through next, so keys are
// unique. The workload's size distribution keeps the tree shallow
// enough that balancing has not been worth its complexity.
type blockTree struct {
	root *node
}

func (t *blockTree) add(addr uintptr, words int) {
	fresh := getNode(addr, words)
	if t.root == nil {
		t.root = fresh
		return
	}
	n := t.root
	for {
		switch {
		case words == n.words:
			// Chain behind the head node; the tree shape is untouched.
			fresh.next = n.next
			n.next = fresh
			return
		case words < n.words:
			if n.left == nil {
				n.left = fresh
				fresh.parent = n
				return
			}
			n = n.left
		default:
			if n.right == nil {
				n.right = fresh
				fresh.parent = n
				return
			}
			n = n.right
		}
	}
}

// remove retrieves a closest-fit block of at least minWords: descending
// from the root, an exactly matching node wins outright; a too-small
// node sends the search right; a larger node is remembered as the
// provisional best fit before the search continues left for a tighter
// one.
func (t *blockTree) remove(minWords int) (uintptr, int, bool) {
	var best *node
	for n := t.root; n != nil; {
		if n.words == minWords {
			best = n
			break
		}
		if n.words < minWords {
			n = n.right
		} else {
			best = n
			n = n.left
		}
	}
	if best == nil {
		return 0, 0, false
	}

	// Prefer a chained sibling: taking one leaves the tree untouched.
	if s := best.next; s != nil {
		best.next = s.next
		addr, words := s.addr, s.words
		putNode(s)
		return addr, words, true
	}

	addr, words := best.addr, best.words
	t.removeNode(best)
	putNode(best)
	return addr, words, true
}

// removeNode unlinks n from the tree. A node with two children is
// back-filled by its in-order successor, which by construction has no
// left child of its own.
func (t *blockTree) removeNode(n *node) {
	if n.left == nil || n.right == nil {
		child := n.left
		if child == nil {
			child = n.right
		}
		t.replaceChild(n, child)
		return
	}

	s := n.right
	for s.left != nil {
		s = s.left
	}
	// Detach the successor from its spot...
	if s.parent != n {
		s.parent.left = s.right
		if s.right != nil {
			s.right.parent = s.parent
		}
		s.right = n.right
		n.right.parent = s
	}
	// ...and put it where n was.
	s.left = n.left
	n.left.parent = s
	t.replaceChild(n, s)
}

// replaceChild rewires n's parent (or the root) to child instead of n.
func (t *blockTree) replaceChild(n, child *node) {
	p := n.parent
	if child != nil {
		child.parent = p
	}
	if p == nil {
		t.root = child
		return
	}
	if p.left == n {
		p.left = child
	} else {
		p.right = child
	}
}
