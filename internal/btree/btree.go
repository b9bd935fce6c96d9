// Package btree implements the on-disk B+-tree: binary search within a
// node, leaf chaining for ordered scans, and split-on-overflow propagation
// up through internal nodes, all composed on top of pager.Pager and the
// byte-offset accessors in internal/storage.
package btree

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"sqlyte/internal/pager"
	"sqlyte/internal/storage"
)

// ErrDuplicateKey is returned by Insert when the key already exists.
var ErrDuplicateKey = fmt.Errorf("btree: duplicate key")

// Tree is a B+-tree rooted at RootPageNum within Pager.
type Tree struct {
	Pager       *pager.Pager
	RootPageNum uint32
}

// New wraps an existing pager and root page number as a Tree. The caller
// is responsible for having initialized the root page as a leaf or
// internal node.
func New(p *pager.Pager, rootPageNum uint32) *Tree {
	return &Tree{Pager: p, RootPageNum: rootPageNum}
}

// Cursor points at a specific cell in a leaf, or one past the last cell
// of the whole tree.
type Cursor struct {
	tree       *Tree
	PageNum    uint32
	CellNum    uint32
	EndOfTable bool
}

// Value returns the row bytes the cursor currently points at.
func (c *Cursor) Value() ([]byte, error) {
	page, err := c.tree.Pager.Get(c.PageNum)
	if err != nil {
		return nil, err
	}
	return storage.LeafValue(page, c.CellNum), nil
}

// Key returns the key the cursor currently points at.
func (c *Cursor) Key() (uint32, error) {
	page, err := c.tree.Pager.Get(c.PageNum)
	if err != nil {
		return 0, err
	}
	return storage.LeafKey(page, c.CellNum), nil
}

// Advance moves the cursor to the next cell in ascending key order,
// crossing into the next leaf via the leaf chain if needed.
func (c *Cursor) Advance() error {
	page, err := c.tree.Pager.Get(c.PageNum)
	if err != nil {
		return err
	}
	c.CellNum++
	if c.CellNum < storage.NumCells(page) {
		return nil
	}

	next := storage.NextLeaf(page)
	if next == 0 {
		c.EndOfTable = true
		return nil
	}
	c.PageNum = next
	c.CellNum = 0
	return nil
}

// Find descends from the root, returning a cursor positioned at key if
// present, or at key's insertion position otherwise.
func (t *Tree) Find(key uint32) (*Cursor, error) {
	return t.findFrom(t.RootPageNum, key)
}

func (t *Tree) findFrom(pageNum, key uint32) (*Cursor, error) {
	page, err := t.Pager.Get(pageNum)
	if err != nil {
		return nil, err
	}
	if storage.GetNodeType(page) == storage.NodeTypeLeaf {
		numCells := storage.NumCells(page)
		idx := leafSearch(page, numCells, key)
		return &Cursor{tree: t, PageNum: pageNum, CellNum: idx, EndOfTable: numCells == 0}, nil
	}

	numKeys := storage.NumKeys(page)
	idx := internalSearch(page, numKeys, key)
	child := storage.InternalChild(page, idx)
	return t.findFrom(child, key)
}

// Start returns a cursor positioned at the smallest key in the tree (or
// end-of-table if the tree is empty).
func (t *Tree) Start() (*Cursor, error) {
	return t.Find(0)
}

// leafSearch returns the smallest index i in [0, numCells) such that
// leafKey(i) >= key, or numCells if no such index exists.
func leafSearch(page *pager.Page, numCells, key uint32) uint32 {
	lo, hi := uint32(0), numCells
	for lo < hi {
		mid := lo + (hi-lo)/2
		if storage.LeafKey(page, mid) >= key {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// internalSearch returns the smallest index i in [0, numKeys] such that
// internalKey(i) >= key, or numKeys if no such index exists. An exact
// match descends into the left child, which owns the "<=" range.
func internalSearch(page *pager.Page, numKeys, key uint32) uint32 {
	lo, hi := uint32(0), numKeys
	for lo < hi {
		mid := lo + (hi-lo)/2
		if storage.InternalKey(page, mid) >= key {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// Insert adds key/row into the tree. Callers get ErrDuplicateKey if key
// already exists; this check happens before any mutation.
func (t *Tree) Insert(key uint32, row []byte) error {
	c, err := t.Find(key)
	if err != nil {
		return err
	}
	page, err := t.Pager.Get(c.PageNum)
	if err != nil {
		return err
	}
	if c.CellNum < storage.NumCells(page) && storage.LeafKey(page, c.CellNum) == key {
		return ErrDuplicateKey
	}
	return t.leafInsert(c, key, row)
}

func (t *Tree) leafInsert(c *Cursor, key uint32, row []byte) error {
	page, err := t.Pager.Get(c.PageNum)
	if err != nil {
		return err
	}
	numCells := storage.NumCells(page)
	if numCells >= storage.LeafNodeMaxCells {
		return t.leafSplitAndInsert(c, key, row)
	}

	storage.ShiftLeafCellsRight(page, c.CellNum, numCells)
	storage.SetNumCells(page, numCells+1)
	storage.SetLeafKey(page, c.CellNum, key)
	copy(storage.LeafValue(page, c.CellNum), row)
	return nil
}

// leafSplitAndInsert allocates a new sibling leaf and redistributes
// LeafNodeMaxCells+1 logical cells (the original cells plus the new one)
// between the old (left) and new (right) leaves, then promotes the split
// to the parent.
func (t *Tree) leafSplitAndInsert(c *Cursor, key uint32, row []byte) error {
	oldPage, err := t.Pager.Get(c.PageNum)
	if err != nil {
		return err
	}

	oldMaxBefore, err := t.nodeMaxKey(oldPage)
	if err != nil {
		return err
	}

	newPageNum := t.Pager.UnusedPageNum()
	newPage, err := t.Pager.Get(newPageNum)
	if err != nil {
		return err
	}
	storage.InitLeaf(newPage)

	for i := int(storage.LeafNodeMaxCells); i >= 0; i-- {
		idx := uint32(i)
		var dest *pager.Page
		if idx >= storage.LeafNodeLeftSplitCount {
			dest = newPage
		} else {
			dest = oldPage
		}
		destIndex := idx % storage.LeafNodeLeftSplitCount

		switch {
		case idx == c.CellNum:
			storage.SetLeafKey(dest, destIndex, key)
			copy(storage.LeafValue(dest, destIndex), row)
		case idx > c.CellNum:
			copy(storage.LeafCell(dest, destIndex), storage.LeafCell(oldPage, idx-1))
		default:
			copy(storage.LeafCell(dest, destIndex), storage.LeafCell(oldPage, idx))
		}
	}

	storage.SetNumCells(oldPage, storage.LeafNodeLeftSplitCount)
	storage.SetNumCells(newPage, storage.LeafNodeRightSplitCount)

	storage.SetNextLeaf(newPage, storage.NextLeaf(oldPage))
	storage.SetNextLeaf(oldPage, newPageNum)
	storage.SetParentPageNum(newPage, storage.ParentPageNum(oldPage))

	if storage.IsRoot(oldPage) {
		return t.createNewRoot(newPageNum)
	}

	parentPageNum := storage.ParentPageNum(oldPage)
	newMaxKey, err := t.nodeMaxKey(oldPage)
	if err != nil {
		return err
	}
	if err := t.updateInternalNodeKey(parentPageNum, oldMaxBefore, newMaxKey); err != nil {
		return err
	}
	return t.internalInsert(parentPageNum, newPageNum)
}

// nodeMaxKey returns the largest key stored in the subtree rooted at page:
// a leaf's last key, or the recursive max of an internal node's right
// child (internal keys are only separators, never the true max).
func (t *Tree) nodeMaxKey(page *pager.Page) (uint32, error) {
	if storage.GetNodeType(page) == storage.NodeTypeLeaf {
		numCells := storage.NumCells(page)
		if numCells == 0 {
			return 0, nil
		}
		return storage.LeafKey(page, numCells-1), nil
	}
	rightChild, err := t.Pager.Get(storage.RightChild(page))
	if err != nil {
		return 0, err
	}
	return t.nodeMaxKey(rightChild)
}

// updateInternalNodeKey rewrites the separator key equal to oldKey (the
// subtree's max key before a split) to newKey. If the subtree in question
// was the node's rightmost child, there is no explicit cell to rewrite --
// internalInsert will create one when the new sibling is spliced in.
func (t *Tree) updateInternalNodeKey(pageNum, oldKey, newKey uint32) error {
	page, err := t.Pager.Get(pageNum)
	if err != nil {
		return err
	}
	numKeys := storage.NumKeys(page)
	idx := internalSearch(page, numKeys, oldKey)
	if idx < numKeys && storage.InternalKey(page, idx) == oldKey {
		storage.SetInternalKey(page, idx, newKey)
	}
	return nil
}

func (t *Tree) setChildParent(childPageNum, parentPageNum uint32) error {
	child, err := t.Pager.Get(childPageNum)
	if err != nil {
		return err
	}
	storage.SetParentPageNum(child, parentPageNum)
	return nil
}

// internalInsert adds a (child, key) entry to parent whose key is the max
// key currently in the subtree rooted at child.
func (t *Tree) internalInsert(parentPageNum, childPageNum uint32) error {
	parentPage, err := t.Pager.Get(parentPageNum)
	if err != nil {
		return err
	}
	childPage, err := t.Pager.Get(childPageNum)
	if err != nil {
		return err
	}
	childMaxKey, err := t.nodeMaxKey(childPage)
	if err != nil {
		return err
	}

	numKeys := storage.NumKeys(parentPage)
	if numKeys >= storage.InternalNodeMaxCells {
		return t.internalSplitAndInsert(parentPageNum, childPageNum)
	}

	index := internalSearch(parentPage, numKeys, childMaxKey)

	rightChild := storage.RightChild(parentPage)
	if rightChild == storage.InvalidPageNum {
		storage.SetRightChild(parentPage, childPageNum)
		return nil
	}

	rightChildPage, err := t.Pager.Get(rightChild)
	if err != nil {
		return err
	}
	rightMaxKey, err := t.nodeMaxKey(rightChildPage)
	if err != nil {
		return err
	}

	storage.SetNumKeys(parentPage, numKeys+1)

	if childMaxKey > rightMaxKey {
		storage.SetInternalChild(parentPage, numKeys, rightChild)
		storage.SetInternalKey(parentPage, numKeys, rightMaxKey)
		storage.SetRightChild(parentPage, childPageNum)
	} else {
		storage.ShiftInternalCellsRight(parentPage, index, numKeys)
		storage.SetInternalChild(parentPage, index, childPageNum)
		storage.SetInternalKey(parentPage, index, childMaxKey)
	}
	return nil
}

// internalSplitAndInsert splits a full internal node to make room for one
// more child, moving the upper half of its keys into a new sibling.
func (t *Tree) internalSplitAndInsert(parentPageNum, childPageNum uint32) error {
	oldPage, err := t.Pager.Get(parentPageNum)
	if err != nil {
		return err
	}
	oldMax, err := t.nodeMaxKey(oldPage)
	if err != nil {
		return err
	}

	splittingRoot := storage.IsRoot(oldPage)

	var oldNodePageNum, newPageNum, grandparentPageNum uint32

	if splittingRoot {
		// Reserve and initialize the new sibling before createNewRoot
		// allocates its own left-child page, so the two allocations
		// (sibling, left child) don't collide on the same page number.
		newPageNum = t.Pager.UnusedPageNum()
		newPage, err := t.Pager.Get(newPageNum)
		if err != nil {
			return err
		}
		storage.InitInternal(newPage)
		storage.SetParentPageNum(newPage, t.RootPageNum)

		if err := t.createNewRoot(newPageNum); err != nil {
			return err
		}
		rootPage, err := t.Pager.Get(parentPageNum)
		if err != nil {
			return err
		}
		oldNodePageNum = storage.InternalChild(rootPage, 0)
	} else {
		oldNodePageNum = parentPageNum
		grandparentPageNum = storage.ParentPageNum(oldPage)

		newPageNum = t.Pager.UnusedPageNum()
		newPage, err := t.Pager.Get(newPageNum)
		if err != nil {
			return err
		}
		storage.InitInternal(newPage)
		storage.SetParentPageNum(newPage, grandparentPageNum)
	}

	oldNode, err := t.Pager.Get(oldNodePageNum)
	if err != nil {
		return err
	}

	// Move the old node's right child into the new node.
	oldRightChild := storage.RightChild(oldNode)
	if err := t.internalInsert(newPageNum, oldRightChild); err != nil {
		return err
	}
	if err := t.setChildParent(oldRightChild, newPageNum); err != nil {
		return err
	}
	storage.SetRightChild(oldNode, storage.InvalidPageNum)

	// Walk the old node's keys from highest down to the midpoint, moving
	// each into the new node.
	for i := int(storage.InternalNodeMaxCells) - 1; i >= storage.InternalNodeMaxCells/2; i-- {
		childToMove := storage.InternalChild(oldNode, uint32(i))
		if err := t.internalInsert(newPageNum, childToMove); err != nil {
			return err
		}
		if err := t.setChildParent(childToMove, newPageNum); err != nil {
			return err
		}
		storage.SetNumKeys(oldNode, storage.NumKeys(oldNode)-1)
	}

	// The child just below the midpoint becomes the old node's new right child.
	numKeys := storage.NumKeys(oldNode)
	storage.SetRightChild(oldNode, storage.InternalChild(oldNode, numKeys-1))
	storage.SetNumKeys(oldNode, numKeys-1)

	// Place the incoming child in whichever half it belongs to.
	childPage, err := t.Pager.Get(childPageNum)
	if err != nil {
		return err
	}
	childMaxKey, err := t.nodeMaxKey(childPage)
	if err != nil {
		return err
	}
	maxAfterSplit, err := t.nodeMaxKey(oldNode)
	if err != nil {
		return err
	}

	destPageNum := newPageNum
	if childMaxKey < maxAfterSplit {
		destPageNum = oldNodePageNum
	}
	if err := t.internalInsert(destPageNum, childPageNum); err != nil {
		return err
	}
	if err := t.setChildParent(childPageNum, destPageNum); err != nil {
		return err
	}

	newMaxOfOld, err := t.nodeMaxKey(oldNode)
	if err != nil {
		return err
	}

	target := grandparentPageNum
	if splittingRoot {
		target = parentPageNum
	}
	if err := t.updateInternalNodeKey(target, oldMax, newMaxOfOld); err != nil {
		return err
	}

	if splittingRoot {
		return nil
	}
	if err := t.internalInsert(grandparentPageNum, newPageNum); err != nil {
		return err
	}
	return t.setChildParent(newPageNum, grandparentPageNum)
}

// createNewRoot reinitializes the root page as an internal node with one
// key and two children: a freshly allocated left child holding a verbatim
// copy of the old root's contents, and rightChildPageNum as the right
// child.
func (t *Tree) createNewRoot(rightChildPageNum uint32) error {
	rootPage, err := t.Pager.Get(t.RootPageNum)
	if err != nil {
		return err
	}

	leftChildPageNum := t.Pager.UnusedPageNum()
	leftChildPage, err := t.Pager.Get(leftChildPageNum)
	if err != nil {
		return err
	}

	leftChildPage.Data = rootPage.Data
	storage.SetIsRoot(leftChildPage, false)

	if storage.GetNodeType(leftChildPage) == storage.NodeTypeInternal {
		numKeys := storage.NumKeys(leftChildPage)
		for i := uint32(0); i < numKeys; i++ {
			if err := t.setChildParent(storage.InternalChild(leftChildPage, i), leftChildPageNum); err != nil {
				return err
			}
		}
		if err := t.setChildParent(storage.RightChild(leftChildPage), leftChildPageNum); err != nil {
			return err
		}
	}

	leftMax, err := t.nodeMaxKey(leftChildPage)
	if err != nil {
		return err
	}

	storage.InitInternal(rootPage)
	storage.SetIsRoot(rootPage, true)
	storage.SetNumKeys(rootPage, 1)
	storage.SetInternalChild(rootPage, 0, leftChildPageNum)
	storage.SetInternalKey(rootPage, 0, leftMax)
	storage.SetRightChild(rootPage, rightChildPageNum)

	if err := t.setChildParent(leftChildPageNum, t.RootPageNum); err != nil {
		return err
	}
	return t.setChildParent(rightChildPageNum, t.RootPageNum)
}

// PrintTree writes a human-readable dump of the subtree rooted at
// pageNum, indenting two spaces per depth level.
func (t *Tree) PrintTree(w io.Writer, pageNum uint32, indentLevel int) error {
	page, err := t.Pager.Get(pageNum)
	if err != nil {
		return errors.Wrapf(err, "btree: print page %d", pageNum)
	}
	indent := strings.Repeat("  ", indentLevel)

	switch storage.GetNodeType(page) {
	case storage.NodeTypeLeaf:
		numCells := storage.NumCells(page)
		fmt.Fprintf(w, "%s- leaf (size %d)\n", indent, numCells)
		for i := uint32(0); i < numCells; i++ {
			fmt.Fprintf(w, "%s  - %d\n", indent, storage.LeafKey(page, i))
		}
	case storage.NodeTypeInternal:
		numKeys := storage.NumKeys(page)
		fmt.Fprintf(w, "%s- internal (size %d)\n", indent, numKeys)
		for i := uint32(0); i < numKeys; i++ {
			child := storage.InternalChild(page, i)
			if err := t.PrintTree(w, child, indentLevel+1); err != nil {
				return err
			}
			fmt.Fprintf(w, "%s  - key %d\n", indent, storage.InternalKey(page, i))
		}
		if err := t.PrintTree(w, storage.RightChild(page), indentLevel+1); err != nil {
			return err
		}
	}
	return nil
}

// Depth returns the number of levels from pageNum down to (and including)
// its leftmost leaf, used by `.stats`.
func (t *Tree) Depth(pageNum uint32) (int, error) {
	page, err := t.Pager.Get(pageNum)
	if err != nil {
		return 0, err
	}
	if storage.GetNodeType(page) == storage.NodeTypeLeaf {
		return 1, nil
	}
	child := storage.InternalChild(page, 0)
	d, err := t.Depth(child)
	if err != nil {
		return 0, err
	}
	return d + 1, nil
}
