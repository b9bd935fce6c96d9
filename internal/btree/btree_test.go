package btree

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sqlyte/internal/pager"
	"sqlyte/internal/storage"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "btree_test.db")
	p, err := pager.Open(path)
	require.NoError(t, err)

	root, err := p.Get(0)
	require.NoError(t, err)
	storage.InitLeaf(root)
	storage.SetIsRoot(root, true)

	return New(p, 0)
}

func row(id uint32) []byte {
	buf := make([]byte, storage.RowSize)
	buf[0] = byte(id)
	return buf
}

func TestFindOnEmptyTreeIsEndOfTable(t *testing.T) {
	tr := newTestTree(t)
	c, err := tr.Find(5)
	require.NoError(t, err)
	require.True(t, c.EndOfTable)
}

func TestInsertAndFindRoundTrip(t *testing.T) {
	tr := newTestTree(t)
	require.NoError(t, tr.Insert(10, row(10)))
	require.NoError(t, tr.Insert(5, row(5)))
	require.NoError(t, tr.Insert(20, row(20)))

	c, err := tr.Find(5)
	require.NoError(t, err)
	require.False(t, c.EndOfTable)
	key, err := c.Key()
	require.NoError(t, err)
	require.Equal(t, uint32(5), key)
}

func TestInsertDuplicateKeyFails(t *testing.T) {
	tr := newTestTree(t)
	require.NoError(t, tr.Insert(1, row(1)))
	err := tr.Insert(1, row(1))
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func scanKeys(t *testing.T, tr *Tree) []uint32 {
	t.Helper()
	c, err := tr.Start()
	require.NoError(t, err)
	var keys []uint32
	for !c.EndOfTable {
		k, err := c.Key()
		require.NoError(t, err)
		keys = append(keys, k)
		require.NoError(t, c.Advance())
	}
	return keys
}

func TestScanAllAscendingAfterManyInserts(t *testing.T) {
	tr := newTestTree(t)
	order := []uint32{7, 3, 9, 1, 5, 11, 2, 8, 4, 6, 10, 12, 13, 14}
	for _, k := range order {
		require.NoError(t, tr.Insert(k, row(k)))
	}

	got := scanKeys(t, tr)
	want := make([]uint32, 14)
	for i := range want {
		want[i] = uint32(i + 1)
	}
	require.Equal(t, want, got)
}

// TestSplitToThreeLeafTree mirrors the documented scenario: inserting
// keys 1..14 in order produces an internal root with separator key 7,
// left leaf 1..7, right leaf 8..14.
func TestSplitToThreeLeafTree(t *testing.T) {
	tr := newTestTree(t)
	for k := uint32(1); k <= 14; k++ {
		require.NoError(t, tr.Insert(k, row(k)))
	}

	root, err := tr.Pager.Get(tr.RootPageNum)
	require.NoError(t, err)
	require.Equal(t, storage.NodeTypeInternal, storage.GetNodeType(root))
	require.Equal(t, uint32(1), storage.NumKeys(root))
	require.Equal(t, uint32(7), storage.InternalKey(root, 0))

	leftPage, err := tr.Pager.Get(storage.InternalChild(root, 0))
	require.NoError(t, err)
	require.Equal(t, uint32(7), storage.NumCells(leftPage))

	rightPage, err := tr.Pager.Get(storage.RightChild(root))
	require.NoError(t, err)
	require.Equal(t, uint32(7), storage.NumCells(rightPage))

	require.Equal(t, []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}, scanKeys(t, tr))
}

func TestMultiLevelTreeScanOrder(t *testing.T) {
	tr := newTestTree(t)
	order := []uint32{
		15, 3, 27, 1, 9, 20, 30, 5, 12, 18, 25, 2, 7, 11, 14,
		17, 19, 22, 24, 26, 28, 29, 4, 6, 8, 10, 13, 16, 21, 23,
	}
	for _, k := range order {
		require.NoError(t, tr.Insert(k, row(k)))
	}
	got := scanKeys(t, tr)
	want := make([]uint32, 30)
	for i := range want {
		want[i] = uint32(i + 1)
	}
	require.Equal(t, want, got)
}

func TestCloseAndReopenPreservesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	p, err := pager.Open(path)
	require.NoError(t, err)
	root, err := p.Get(0)
	require.NoError(t, err)
	storage.InitLeaf(root)
	storage.SetIsRoot(root, true)

	tr := New(p, 0)
	for _, k := range []uint32{1, 2, 3} {
		require.NoError(t, tr.Insert(k, row(k)))
	}
	require.NoError(t, p.Close())

	p2, err := pager.Open(path)
	require.NoError(t, err)
	defer p2.Close()
	tr2 := New(p2, 0)
	require.Equal(t, []uint32{1, 2, 3}, scanKeys(t, tr2))
}

func TestPrintTreeMatchesDocumentedFormat(t *testing.T) {
	tr := newTestTree(t)
	for k := uint32(1); k <= 14; k++ {
		require.NoError(t, tr.Insert(k, row(k)))
	}

	var buf bytes.Buffer
	require.NoError(t, tr.PrintTree(&buf, tr.RootPageNum, 0))

	out := buf.String()
	require.Contains(t, out, "- internal (size 1)")
	require.Contains(t, out, fmt.Sprintf("  - key %d\n", 7))
	require.Contains(t, out, "- leaf (size 7)")
}
