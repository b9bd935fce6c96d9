// Package table is a thin holder of a root page number and a pager,
// delegating storage and ordering to internal/btree.
package table

import (
	"io"

	"github.com/pkg/errors"

	"sqlyte/internal/btree"
	"sqlyte/internal/pager"
	"sqlyte/internal/storage"
)

// ErrDuplicateKey is returned by Insert when row.ID already exists.
var ErrDuplicateKey = btree.ErrDuplicateKey

// RootPageNum is always 0: page 0 is always the root.
const RootPageNum = 0

// Table wraps a pager and the B+-tree rooted at page 0.
type Table struct {
	pager *pager.Pager
	tree  *btree.Tree
}

// Open opens (or creates) the database file at path, initializing page 0
// as an empty leaf root when the file is new.
func Open(path string, opts ...pager.Option) (*Table, error) {
	p, err := pager.Open(path, opts...)
	if err != nil {
		return nil, err
	}

	if p.NumPages() == 0 {
		root, err := p.Get(RootPageNum)
		if err != nil {
			return nil, err
		}
		storage.InitLeaf(root)
		storage.SetIsRoot(root, true)
	}

	return &Table{pager: p, tree: btree.New(p, RootPageNum)}, nil
}

// Insert adds row to the table, failing with ErrDuplicateKey if row.ID
// already exists.
func (t *Table) Insert(row Row) error {
	return t.tree.Insert(row.ID, SerializeRow(row))
}

// Find returns the row with the given id, and whether it was present.
func (t *Table) Find(id uint32) (Row, bool, error) {
	c, err := t.tree.Find(id)
	if err != nil {
		return Row{}, false, err
	}
	if c.EndOfTable {
		return Row{}, false, nil
	}
	key, err := c.Key()
	if err != nil {
		return Row{}, false, err
	}
	if key != id {
		return Row{}, false, nil
	}
	val, err := c.Value()
	if err != nil {
		return Row{}, false, err
	}
	return DeserializeRow(val), true, nil
}

// SelectAll returns every row in ascending key order.
func (t *Table) SelectAll() ([]Row, error) {
	c, err := t.tree.Start()
	if err != nil {
		return nil, err
	}
	var rows []Row
	for !c.EndOfTable {
		val, err := c.Value()
		if err != nil {
			return nil, err
		}
		rows = append(rows, DeserializeRow(val))
		if err := c.Advance(); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// PrintTree dumps the B+-tree structure, per spec.md's `.btree` format.
func (t *Table) PrintTree(w io.Writer) error {
	return t.tree.PrintTree(w, RootPageNum, 0)
}

// Depth returns the number of levels from the root down to (and
// including) the leftmost leaf.
func (t *Table) Depth() (int, error) {
	return t.tree.Depth(RootPageNum)
}

// RootPage returns the root's page number, for `.stats`.
func (t *Table) RootPage() uint32 { return RootPageNum }

// NumPages reports how many pages the backing pager has allocated.
func (t *Table) NumPages() uint32 { return t.pager.NumPages() }

// Close flushes every populated page and releases the file.
func (t *Table) Close() error {
	if err := t.pager.Close(); err != nil {
		return errors.Wrap(err, "table: close")
	}
	return nil
}
