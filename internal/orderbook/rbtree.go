package orderbook

// rbTree is a red-black tree keyed by price, each node holding one
// PriceLevel. A standard CLRS-style implementation, including full
// rotation and fixup logic for both insert and delete.
type rbColor bool

const (
	red   rbColor = false
	black rbColor = true
)

type rbNode struct {
	key    float64
	level  *PriceLevel
	color  rbColor
	left   *rbNode
	right  *rbNode
	parent *rbNode
}

type rbTree struct {
	root *rbNode
	nilN *rbNode
	size int
}

func newRBTree() *rbTree {
	sentinel := &rbNode{color: black}
	return &rbTree{root: sentinel, nilN: sentinel}
}

func (t *rbTree) Size() int { return t.size }

// Find returns the PriceLevel at price, or nil.
func (t *rbTree) Find(price float64) *PriceLevel {
	n := t.findNode(price)
	if n == t.nilN {
		return nil
	}
	return n.level
}

func (t *rbTree) findNode(price float64) *rbNode {
	n := t.root
	for n != t.nilN {
		switch {
		case price < n.key:
			n = n.left
		case price > n.key:
			n = n.right
		default:
			return n
		}
	}
	return t.nilN
}

// GetOrCreate returns the PriceLevel at price, creating and inserting an
// empty one if none exists yet: levels are created lazily when the first
// order at that price arrives.
func (t *rbTree) GetOrCreate(price float64) *PriceLevel {
	y := t.nilN
	x := t.root
	for x != t.nilN {
		y = x
		switch {
		case price < x.key:
			x = x.left
		case price > x.key:
			x = x.right
		default:
			return x.level
		}
	}

	lvl := newPriceLevel(price)
	z := &rbNode{key: price, level: lvl, color: red, left: t.nilN, right: t.nilN, parent: y}
	if y == t.nilN {
		t.root = z
	} else if price < y.key {
		y.left = z
	} else {
		y.right = z
	}
	t.insertFixup(z)
	t.size++
	return lvl
}

// Delete removes the level at price. Returns false if no such level
// exists.
func (t *rbTree) Delete(price float64) bool {
	z := t.findNode(price)
	if z == t.nilN {
		return false
	}
	t.deleteNode(z)
	t.size--
	return true
}

// Min returns the lowest-priced level, or nil if the tree is empty.
func (t *rbTree) Min() *PriceLevel {
	n := t.minNode(t.root)
	if n == t.nilN {
		return nil
	}
	return n.level
}

// Max returns the highest-priced level, or nil if the tree is empty.
func (t *rbTree) Max() *PriceLevel {
	n := t.maxNode(t.root)
	if n == t.nilN {
		return nil
	}
	return n.level
}

// WalkAscending visits levels from lowest to highest price, stopping early
// if fn returns false.
func (t *rbTree) WalkAscending(fn func(*PriceLevel) bool) {
	for n := t.minNode(t.root); n != t.nilN; n = t.successor(n) {
		if !fn(n.level) {
			return
		}
	}
}

// WalkDescending visits levels from highest to lowest price, stopping
// early if fn returns false.
func (t *rbTree) WalkDescending(fn func(*PriceLevel) bool) {
	for n := t.maxNode(t.root); n != t.nilN; n = t.predecessor(n) {
		if !fn(n.level) {
			return
		}
	}
}

func (t *rbTree) minNode(n *rbNode) *rbNode {
	for n != t.nilN && n.left != t.nilN {
		n = n.left
	}
	return n
}

func (t *rbTree) maxNode(n *rbNode) *rbNode {
	for n != t.nilN && n.right != t.nilN {
		n = n.right
	}
	return n
}

func (t *rbTree) successor(n *rbNode) *rbNode {
	if n.right != t.nilN {
		return t.minNode(n.right)
	}
	p := n.parent
	for p != t.nilN && n == p.right {
		n = p
		p = p.parent
	}
	return p
}

func (t *rbTree) predecessor(n *rbNode) *rbNode {
	if n.left != t.nilN {
		return t.maxNode(n.left)
	}
	p := n.parent
	for p != t.nilN && n == p.left {
		n = p
		p = p.parent
	}
	return p
}

func (t *rbTree) leftRotate(x *rbNode) {
	y := x.right
	x.right = y.left
	if y.left != t.nilN {
		y.left.parent = x
	}
	y.parent = x.parent
	if x.parent == t.nilN {
		t.root = y
	} else if x == x.parent.left {
		x.parent.left = y
	} else {
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *rbTree) rightRotate(x *rbNode) {
	y := x.left
	x.left = y.right
	if y.right != t.nilN {
		y.right.parent = x
	}
	y.parent = x.parent
	if x.parent == t.nilN {
		t.root = y
	} else if x == x.parent.right {
		x.parent.right = y
	} else {
		x.parent.left = y
	}
	y.right = x
	x.parent = y
}

func (t *rbTree) insertFixup(z *rbNode) {
	for z.parent.color == red {
		if z.parent == z.parent.parent.left {
			y := z.parent.parent.right
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.right {
					z = z.parent
					t.leftRotate(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				t.rightRotate(z.parent.parent)
			}
		} else {
			y := z.parent.parent.left
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.left {
					z = z.parent
					t.rightRotate(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				t.leftRotate(z.parent.parent)
			}
		}
	}
	t.root.color = black
}

func (t *rbTree) transplant(u, v *rbNode) {
	if u.parent == t.nilN {
		t.root = v
	} else if u == u.parent.left {
		u.parent.left = v
	} else {
		u.parent.right = v
	}
	v.parent = u.parent
}

func (t *rbTree) deleteNode(z *rbNode) {
	y := z
	yOriginalColor := y.color
	var x *rbNode

	if z.left == t.nilN {
		x = z.right
		t.transplant(z, z.right)
	} else if z.right == t.nilN {
		x = z.left
		t.transplant(z, z.left)
	} else {
		y = t.minNode(z.right)
		yOriginalColor = y.color
		x = y.right
		if y.parent == z {
			x.parent = y
		} else {
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.color = z.color
	}

	if yOriginalColor == black {
		t.deleteFixup(x)
	}
}

func (t *rbTree) deleteFixup(x *rbNode) {
	for x != t.root && x.color == black {
		if x == x.parent.left {
			w := x.parent.right
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.leftRotate(x.parent)
				w = x.parent.right
			}
			if w.left.color == black && w.right.color == black {
				w.color = red
				x = x.parent
			} else {
				if w.right.color == black {
					w.left.color = black
					w.color = red
					t.rightRotate(w)
					w = x.parent.right
				}
				w.color = x.parent.color
				x.parent.color = black
				w.right.color = black
				t.leftRotate(x.parent)
				x = t.root
			}
		} else {
			w := x.parent.left
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.rightRotate(x.parent)
				w = x.parent.left
			}
			if w.right.color == black && w.left.color == black {
				w.color = red
				x = x.parent
			} else {
				if w.left.color == black {
					w.right.color = black
					w.color = red
					t.leftRotate(w)
					w = x.parent.left
				}
				w.color = x.parent.color
				x.parent.color = black
				w.left.color = black
				t.rightRotate(x.parent)
				x = t.root
			}
		}
	}
	x.color = black
}
