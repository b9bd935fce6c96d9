package pager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "pager_test.db")
}

func TestOpenEmptyFile(t *testing.T) {
	p, err := Open(tempDBPath(t))
	require.NoError(t, err)
	defer p.Close()

	require.Equal(t, uint32(0), p.NumPages())
	require.Equal(t, uint32(0), p.UnusedPageNum())
}

func TestGetAllocatesAndFlushRoundTrips(t *testing.T) {
	path := tempDBPath(t)
	p, err := Open(path)
	require.NoError(t, err)

	page, err := p.Get(0)
	require.NoError(t, err)
	page.Data[0] = 0xAB
	page.Data[checksumOffset-1] = 0xCD

	require.NoError(t, p.Flush(0))
	require.NoError(t, p.Close())

	p2, err := Open(path)
	require.NoError(t, err)
	defer p2.Close()

	require.Equal(t, uint32(1), p2.NumPages())
	reread, err := p2.Get(0)
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), reread.Data[0])
	require.Equal(t, byte(0xCD), reread.Data[checksumOffset-1])
}

func TestGetOutOfBounds(t *testing.T) {
	p, err := Open(tempDBPath(t), WithMaxPages(2))
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Get(2)
	require.Error(t, err)
}

func TestGetReturnsSamePointerAcrossCalls(t *testing.T) {
	p, err := Open(tempDBPath(t))
	require.NoError(t, err)
	defer p.Close()

	first, err := p.Get(0)
	require.NoError(t, err)
	second, err := p.Get(0)
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	path := tempDBPath(t)
	require.NoError(t, os.WriteFile(path, make([]byte, PageSize+1), 0600))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrCorruptFile)
}

func TestGetDetectsChecksumCorruptionAfterReopen(t *testing.T) {
	path := tempDBPath(t)
	p, err := Open(path)
	require.NoError(t, err)

	page, err := p.Get(0)
	require.NoError(t, err)
	page.Data[10] = 0x42
	require.NoError(t, p.Flush(0))
	require.NoError(t, p.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[10] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0600))

	p2, err := Open(path)
	require.NoError(t, err)
	defer p2.Close()

	_, err = p2.Get(0)
	require.ErrorIs(t, err, ErrCorruptFile)
}

func TestFlushUnpopulatedSlotFails(t *testing.T) {
	p, err := Open(tempDBPath(t))
	require.NoError(t, err)
	defer p.Close()

	err = p.Flush(5)
	require.Error(t, err)
}

func TestWithMaxPagesOverridesDefault(t *testing.T) {
	p, err := Open(tempDBPath(t), WithMaxPages(3))
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Get(2)
	require.NoError(t, err)
	_, err = p.Get(3)
	require.Error(t, err)
}
