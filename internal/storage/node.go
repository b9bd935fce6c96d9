// Package storage holds the pure byte-offset accessors for leaf and
// internal B+-tree nodes within a single pager.Page. Nothing here touches
// the file or the tree-balancing algorithm; it only knows how to read and
// write typed fields at known offsets.
package storage

import (
	"encoding/binary"

	"sqlyte/internal/pager"
)

// Row layout. Kept separate from internal/table's Row struct so the
// layout constants tested by `.constants` live next to the rest of the
// node layout.
const (
	RowIDSize       = 4
	RowUsernameSize = 33 // 32 user bytes + NUL terminator
	RowEmailSize    = 256 // 255 user bytes + NUL terminator
	RowSize         = RowIDSize + RowUsernameSize + RowEmailSize
)

// Common node header, shared by leaf and internal nodes.
const (
	NodeTypeOffset = 0
	NodeTypeSize   = 1

	IsRootOffset = NodeTypeOffset + NodeTypeSize
	IsRootSize   = 1

	ParentPointerOffset = IsRootOffset + IsRootSize
	ParentPointerSize   = 4

	CommonNodeHeaderSize = NodeTypeSize + IsRootSize + ParentPointerSize
)

// Leaf node header and body layout.
const (
	LeafNodeNumCellsOffset = CommonNodeHeaderSize
	LeafNodeNumCellsSize   = 4

	LeafNodeNextLeafOffset = LeafNodeNumCellsOffset + LeafNodeNumCellsSize
	LeafNodeNextLeafSize   = 4

	LeafNodeHeaderSize = CommonNodeHeaderSize + LeafNodeNumCellsSize + LeafNodeNextLeafSize

	LeafNodeKeySize     = 4
	LeafNodeKeyOffset   = 0
	LeafNodeValueSize   = RowSize
	LeafNodeValueOffset = LeafNodeKeyOffset + LeafNodeKeySize
	LeafNodeCellSize    = LeafNodeKeySize + LeafNodeValueSize

	LeafNodeSpaceForCells = pager.PageSize - LeafNodeHeaderSize
	LeafNodeMaxCells      = LeafNodeSpaceForCells / LeafNodeCellSize

	LeafNodeRightSplitCount = (LeafNodeMaxCells + 1) / 2
	LeafNodeLeftSplitCount  = (LeafNodeMaxCells + 1) - LeafNodeRightSplitCount
)

// Internal node header and body layout.
const (
	InternalNodeNumKeysOffset = CommonNodeHeaderSize
	InternalNodeNumKeysSize   = 4

	InternalNodeRightChildOffset = InternalNodeNumKeysOffset + InternalNodeNumKeysSize
	InternalNodeRightChildSize   = 4

	InternalNodeHeaderSize = CommonNodeHeaderSize + InternalNodeNumKeysSize + InternalNodeRightChildSize

	InternalNodeChildSize = 4
	InternalNodeKeySize   = 4
	InternalNodeCellSize  = InternalNodeChildSize + InternalNodeKeySize

	// InternalNodeMaxCells is kept artificially small, matching the C
	// tutorial this engine descends from, so that tests can exercise
	// internal-node splits without needing a huge dataset. The on-disk
	// layout leaves ample room for a much larger value.
	InternalNodeMaxCells = 3
)

// InvalidPageNum marks a right-child pointer as "not yet set" during
// internal-node construction.
const InvalidPageNum uint32 = 0xFFFFFFFF

// NodeType discriminates a page between leaf and internal.
type NodeType uint8

const (
	NodeTypeInternal NodeType = 0
	NodeTypeLeaf     NodeType = 1
)

// --- common header accessors ---

func GetNodeType(p *pager.Page) NodeType { return NodeType(p.Data[NodeTypeOffset]) }

func SetNodeType(p *pager.Page, t NodeType) { p.Data[NodeTypeOffset] = byte(t) }

func IsRoot(p *pager.Page) bool { return p.Data[IsRootOffset] != 0 }

func SetIsRoot(p *pager.Page, isRoot bool) {
	if isRoot {
		p.Data[IsRootOffset] = 1
	} else {
		p.Data[IsRootOffset] = 0
	}
}

func ParentPageNum(p *pager.Page) uint32 {
	return binary.LittleEndian.Uint32(p.Data[ParentPointerOffset : ParentPointerOffset+ParentPointerSize])
}

func SetParentPageNum(p *pager.Page, pageNum uint32) {
	binary.LittleEndian.PutUint32(p.Data[ParentPointerOffset:ParentPointerOffset+ParentPointerSize], pageNum)
}

// --- leaf accessors ---

func NumCells(p *pager.Page) uint32 {
	return binary.LittleEndian.Uint32(p.Data[LeafNodeNumCellsOffset : LeafNodeNumCellsOffset+LeafNodeNumCellsSize])
}

func SetNumCells(p *pager.Page, n uint32) {
	binary.LittleEndian.PutUint32(p.Data[LeafNodeNumCellsOffset:LeafNodeNumCellsOffset+LeafNodeNumCellsSize], n)
}

func NextLeaf(p *pager.Page) uint32 {
	return binary.LittleEndian.Uint32(p.Data[LeafNodeNextLeafOffset : LeafNodeNextLeafOffset+LeafNodeNextLeafSize])
}

func SetNextLeaf(p *pager.Page, pageNum uint32) {
	binary.LittleEndian.PutUint32(p.Data[LeafNodeNextLeafOffset:LeafNodeNextLeafOffset+LeafNodeNextLeafSize], pageNum)
}

func leafCellOffset(i uint32) uint32 { return LeafNodeHeaderSize + i*LeafNodeCellSize }

// LeafCell returns the full (key, value) cell slice at index i.
func LeafCell(p *pager.Page, i uint32) []byte {
	off := leafCellOffset(i)
	return p.Data[off : off+LeafNodeCellSize]
}

func LeafKey(p *pager.Page, i uint32) uint32 {
	off := leafCellOffset(i) + LeafNodeKeyOffset
	return binary.LittleEndian.Uint32(p.Data[off : off+LeafNodeKeySize])
}

func SetLeafKey(p *pager.Page, i, key uint32) {
	off := leafCellOffset(i) + LeafNodeKeyOffset
	binary.LittleEndian.PutUint32(p.Data[off:off+LeafNodeKeySize], key)
}

// LeafValue returns the row-bytes slice for cell i.
func LeafValue(p *pager.Page, i uint32) []byte {
	off := leafCellOffset(i) + LeafNodeValueOffset
	return p.Data[off : off+LeafNodeValueSize]
}

// ShiftLeafCellsRight moves cells [from, numCells) one slot to the right,
// making room for a new cell to be written at index from.
func ShiftLeafCellsRight(p *pager.Page, from, numCells uint32) {
	if from >= numCells {
		return
	}
	src := p.Data[leafCellOffset(from):leafCellOffset(numCells)]
	dst := p.Data[leafCellOffset(from+1):]
	copy(dst, src)
}

func InitLeaf(p *pager.Page) {
	SetNodeType(p, NodeTypeLeaf)
	SetIsRoot(p, false)
	SetNumCells(p, 0)
	SetNextLeaf(p, 0)
}

// --- internal accessors ---

func NumKeys(p *pager.Page) uint32 {
	return binary.LittleEndian.Uint32(p.Data[InternalNodeNumKeysOffset : InternalNodeNumKeysOffset+InternalNodeNumKeysSize])
}

func SetNumKeys(p *pager.Page, n uint32) {
	binary.LittleEndian.PutUint32(p.Data[InternalNodeNumKeysOffset:InternalNodeNumKeysOffset+InternalNodeNumKeysSize], n)
}

func RightChild(p *pager.Page) uint32 {
	return binary.LittleEndian.Uint32(p.Data[InternalNodeRightChildOffset : InternalNodeRightChildOffset+InternalNodeRightChildSize])
}

func SetRightChild(p *pager.Page, pageNum uint32) {
	binary.LittleEndian.PutUint32(p.Data[InternalNodeRightChildOffset:InternalNodeRightChildOffset+InternalNodeRightChildSize], pageNum)
}

func internalCellOffset(i uint32) uint32 { return InternalNodeHeaderSize + i*InternalNodeCellSize }

// InternalChild returns the left child pointer for i < NumKeys, or the
// right child pointer for i == NumKeys.
func InternalChild(p *pager.Page, i uint32) uint32 {
	if i == NumKeys(p) {
		return RightChild(p)
	}
	off := internalCellOffset(i)
	return binary.LittleEndian.Uint32(p.Data[off : off+InternalNodeChildSize])
}

// SetInternalChild writes the left child pointer for i < NumKeys, or the
// right child pointer for i == NumKeys.
func SetInternalChild(p *pager.Page, i, childPageNum uint32) {
	if i == NumKeys(p) {
		SetRightChild(p, childPageNum)
		return
	}
	off := internalCellOffset(i)
	binary.LittleEndian.PutUint32(p.Data[off:off+InternalNodeChildSize], childPageNum)
}

func InternalKey(p *pager.Page, i uint32) uint32 {
	off := internalCellOffset(i) + InternalNodeChildSize
	return binary.LittleEndian.Uint32(p.Data[off : off+InternalNodeKeySize])
}

func SetInternalKey(p *pager.Page, i, key uint32) {
	off := internalCellOffset(i) + InternalNodeChildSize
	binary.LittleEndian.PutUint32(p.Data[off:off+InternalNodeKeySize], key)
}

// ShiftInternalCellsRight moves cells [from, numKeys) one slot to the
// right, making room for a new cell to be written at index from.
func ShiftInternalCellsRight(p *pager.Page, from, numKeys uint32) {
	if from >= numKeys {
		return
	}
	src := p.Data[internalCellOffset(from):internalCellOffset(numKeys)]
	dst := p.Data[internalCellOffset(from+1):]
	copy(dst, src)
}

func InitInternal(p *pager.Page) {
	SetNodeType(p, NodeTypeInternal)
	SetIsRoot(p, false)
	SetNumKeys(p, 0)
	SetRightChild(p, InvalidPageNum)
}
