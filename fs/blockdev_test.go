package fs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustMount(t *testing.T) *Device {
	t.Helper()
	dev, err := Mount(filepath.Join(t.TempDir(), "image.bin"))
	require.NoError(t, err)
	t.Cleanup(func() { dev.Unmount() })
	return dev
}

func TestMountFormatsFreshImage(t *testing.T) {
	r := require.New(t)
	dev := mustMount(t)

	r.True(bitGet(dev.blockBitmap(), 0))
	for i := 0; i < inodeTableBlocks; i++ {
		r.True(bitGet(dev.blockBitmap(), 1+i))
	}
	r.True(bitGet(dev.inodeBitmap(), RootInum))

	root := dev.GetInode(RootInum)
	r.True(root.IsDir())
}

func TestMountIsIdempotentAcrossReopen(t *testing.T) {
	r := require.New(t)
	path := filepath.Join(t.TempDir(), "image.bin")

	dev1, err := Mount(path)
	r.NoError(err)
	_, err = dev1.DirectoryMkdir(dev1.GetInode(RootInum), "keep")
	r.NoError(err)
	r.NoError(dev1.Unmount())

	dev2, err := Mount(path)
	r.NoError(err)
	defer dev2.Unmount()

	inum, err := dev2.DirectoryLookup(dev2.GetInode(RootInum), "keep")
	r.NoError(err)
	r.True(dev2.GetInode(int(inum)).IsDir())
}

func TestAllocBlockExhaustion(t *testing.T) {
	r := require.New(t)
	dev := mustMount(t)

	allocated := 0
	for {
		if _, err := dev.AllocBlock(); err != nil {
			r.ErrorIs(err, ErrNoSpace)
			break
		}
		allocated++
		r.Less(allocated, NBLOCKS+1)
	}
	r.Greater(allocated, 0)
}

func TestFreeBlockAllowsReuse(t *testing.T) {
	r := require.New(t)
	dev := mustMount(t)

	b, err := dev.AllocBlock()
	r.NoError(err)
	dev.FreeBlock(b)

	b2, err := dev.AllocBlock()
	r.NoError(err)
	r.Equal(b, b2)
}

func TestBytesToBlocks(t *testing.T) {
	r := require.New(t)
	r.Equal(0, BytesToBlocks(0))
	r.Equal(1, BytesToBlocks(1))
	r.Equal(1, BytesToBlocks(BS))
	r.Equal(2, BytesToBlocks(BS+1))
}
