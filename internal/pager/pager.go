// Package pager owns the on-disk file and the fixed-capacity slot array of
// in-memory page buffers that every other storage component borrows pages
// from. It serves read-through Get and write-through Flush and is the only
// component that ever touches the file descriptor.
package pager

import (
	"encoding/binary"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	// PageSize is the fixed size, in bytes, of every page on disk and in memory.
	PageSize = 4096

	// TableMaxPages bounds how many pages the pager will hold, on disk and
	// in memory, simultaneously. There is no page recycling: pages are only
	// ever appended.
	TableMaxPages = 100

	checksumSize   = 8
	checksumOffset = PageSize - checksumSize
)

// ErrCorruptFile is returned when a database file's length isn't a whole
// multiple of PageSize, or when a page's checksum trailer doesn't match its
// contents.
var ErrCorruptFile = errors.New("pager: corrupt file")

// Page is a single 4096-byte opaque region, mirrored between disk and
// memory. The last checksumSize bytes hold an xxhash64 digest of the rest
// of the page, refreshed on every Flush and verified on read-through Get.
type Page struct {
	Data [PageSize]byte
}

// Pager maps page numbers to in-memory buffers and persists them to a file.
type Pager struct {
	file     *os.File
	fd       int
	maxPages uint32
	pages    []*Page
	numPages uint32
}

// Option configures a Pager at Open time.
type Option func(*Pager)

// WithMaxPages overrides the number of pages the pager will keep resident,
// in place of TableMaxPages. Values <= 0 are ignored.
func WithMaxPages(n uint32) Option {
	return func(p *Pager) {
		if n > 0 {
			p.maxPages = n
		}
	}
}

// Open opens (or creates) path for read/write and computes NumPages from
// the file's length. The file's length must be a whole multiple of
// PageSize; any other length means the file is corrupt.
func Open(path string, opts ...Option) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "pager: open")
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "pager: stat")
	}
	if fi.Size()%PageSize != 0 {
		f.Close()
		return nil, errors.Wrapf(ErrCorruptFile, "file length %d is not a multiple of page size %d", fi.Size(), PageSize)
	}

	p := &Pager{
		file:     f,
		fd:       int(f.Fd()),
		maxPages: TableMaxPages,
		numPages: uint32(fi.Size() / PageSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.pages = make([]*Page, p.maxPages)
	return p, nil
}

// NumPages reports the authoritative count of allocated pages, equivalent
// to the spec's unused_page_num(): the next page number that Get will hand
// back a fresh, never-before-seen buffer for.
func (p *Pager) NumPages() uint32 { return p.numPages }

// UnusedPageNum returns the next page number available for allocation.
// There is no free list: pages are only ever appended.
func (p *Pager) UnusedPageNum() uint32 { return p.numPages }

// Get returns the in-memory buffer for pageNum, reading it through from
// disk on first access. Pages beyond the current file length materialize
// zeroed, and extend NumPages as a side effect.
func (p *Pager) Get(pageNum uint32) (*Page, error) {
	if pageNum >= p.maxPages {
		return nil, errors.Errorf("pager: page %d out of bounds (max %d)", pageNum, p.maxPages)
	}

	if p.pages[pageNum] == nil {
		page := &Page{}
		if pageNum < p.numPages {
			n, err := unix.Pread(p.fd, page.Data[:], int64(pageNum)*PageSize)
			if err != nil {
				return nil, errors.Wrapf(err, "pager: read page %d", pageNum)
			}
			// A short read at EOF is tolerated: the buffer is already
			// zero-initialized, and a page that was never fully flushed
			// is indistinguishable from a freshly allocated one.
			if n == PageSize {
				if err := verifyChecksum(page); err != nil {
					return nil, errors.Wrapf(err, "pager: page %d", pageNum)
				}
			}
		}
		p.pages[pageNum] = page
	}

	if pageNum >= p.numPages {
		p.numPages = pageNum + 1
	}
	return p.pages[pageNum], nil
}

// Flush writes pageNum's in-memory buffer back to disk. The slot must
// already be populated; flushing an unpopulated slot is a programming
// error and is fatal, matching the spec's "attempt to flush a null slot"
// invariant violation.
func (p *Pager) Flush(pageNum uint32) error {
	page := p.pages[pageNum]
	if page == nil {
		return errors.Errorf("pager: flush of unpopulated slot %d", pageNum)
	}
	writeChecksum(page)

	n, err := unix.Pwrite(p.fd, page.Data[:], int64(pageNum)*PageSize)
	if err != nil {
		return errors.Wrapf(err, "pager: write page %d", pageNum)
	}
	if n != PageSize {
		return errors.Errorf("pager: short write for page %d: wrote %d of %d bytes", pageNum, n, PageSize)
	}
	return nil
}

// Close flushes every populated slot and closes the underlying file.
func (p *Pager) Close() error {
	for i := uint32(0); i < p.numPages; i++ {
		if p.pages[i] == nil {
			continue
		}
		if err := p.Flush(i); err != nil {
			return err
		}
	}
	return p.file.Close()
}

func writeChecksum(page *Page) {
	sum := xxhash.Sum64(page.Data[:checksumOffset])
	binary.LittleEndian.PutUint64(page.Data[checksumOffset:], sum)
}

// verifyChecksum treats an all-zero page (no checksum ever written) as
// valid: it is either a page that was allocated this session and not yet
// flushed, or a sparse hole left by writing a later page first.
func verifyChecksum(page *Page) error {
	stored := binary.LittleEndian.Uint64(page.Data[checksumOffset:])
	if stored == 0 && isAllZero(page.Data[:checksumOffset]) {
		return nil
	}
	if stored != xxhash.Sum64(page.Data[:checksumOffset]) {
		return ErrCorruptFile
	}
	return nil
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
