package fs

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// imageSize is the exact size in bytes every backing image file must have.
const imageSize = NBLOCKS * BS

// Device is the block device and bitmap layer (BD). It owns the raw
// NBLOCKS*BS byte array of the mounted image and the block-in-use /
// inode-in-use bitmaps packed into block 0. Every other layer in this
// package reaches the bytes of the image only through a Device.
type Device struct {
	file *os.File
	// data is the mmap'd image: block i occupies data[i*BS : (i+1)*BS].
	// Slices taken off of it alias the mapping directly, so writes through
	// a GetBlock view (or an Inode/dirent view built on top of one) are
	// visible to every other holder of the same Device immediately.
	data []byte
}

// Mount opens (creating if absent) the image file at path, resizing it to
// exactly NBLOCKS*BS bytes (zero-extending a shorter file, cutting a longer
// one), and maps it into memory. If the image is
// freshly created (or its bitmaps are all zero) it is formatted: the
// reserved blocks and inode 0/1 are marked in-use and the root directory is
// bootstrapped.
func Mount(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mount %s: %w", path, err)
	}
	if info.Size() != imageSize {
		if err := f.Truncate(imageSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("mount %s: %w", path, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, imageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mount %s: mmap: %w", path, err)
	}

	d := &Device{file: f, data: data}
	if d.needsFormat() {
		if err := d.format(); err != nil {
			d.Unmount()
			return nil, err
		}
	}
	return d, nil
}

// needsFormat reports whether block 0's bitmaps are all-zero, i.e. the image
// has never been formatted.
func (d *Device) needsFormat() bool {
	blk := d.GetBlock(0)
	for _, b := range blk[:blockBitmapBytes+inodeBitmapBytes] {
		if b != 0 {
			return false
		}
	}
	return true
}

// format reserves block 0 and the inode-table blocks in the block bitmap,
// reserves inode 0 in the inode bitmap, and bootstraps the root directory.
func (d *Device) format() error {
	bbm := d.blockBitmap()
	bitSet(bbm, 0)
	for i := 0; i < inodeTableBlocks; i++ {
		bitSet(bbm, 1+i)
	}

	ibm := d.inodeBitmap()
	bitSet(ibm, 0)

	return d.DirectoryInit()
}

// Unmount flushes the mapping to disk and releases the backing file. It is
// safe to call more than once; every exit path in Mount that creates a
// Device also guarantees Unmount runs on failure.
func (d *Device) Unmount() error {
	var firstErr error
	if d.data != nil {
		if err := unix.Msync(d.data, unix.MS_SYNC); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unmount: msync: %w", err)
		}
		if err := unix.Munmap(d.data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unmount: munmap: %w", err)
		}
		d.data = nil
	}
	if d.file != nil {
		if err := d.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unmount: %w", err)
		}
		d.file = nil
	}
	return firstErr
}

// GetBlock returns a view of block i's BS bytes. Behavior is undefined for
// i outside [0, NBLOCKS).
func (d *Device) GetBlock(i int) []byte {
	return d.data[i*BS : (i+1)*BS]
}

func (d *Device) blockBitmap() []byte {
	return d.GetBlock(0)[:blockBitmapBytes]
}

func (d *Device) inodeBitmap() []byte {
	return d.GetBlock(0)[blockBitmapBytes : blockBitmapBytes+inodeBitmapBytes]
}

// AllocBlock scans the block bitmap for the lowest clear bit in [1, NBLOCKS),
// sets it, zero-fills the block, and returns its index. It fails with
// ErrNoSpace when every block is in use.
func (d *Device) AllocBlock() (int, error) {
	bbm := d.blockBitmap()
	b := bitFindClear(bbm, 1, NBLOCKS)
	if b == -1 {
		return -1, ErrNoSpace
	}
	bitSet(bbm, b)
	blk := d.GetBlock(b)
	for i := range blk {
		blk[i] = 0
	}
	return b, nil
}

// FreeBlock clears bit b of the block bitmap. It is a no-op if the block is
// already free. The block's contents become undefined.
func (d *Device) FreeBlock(b int) {
	bitClear(d.blockBitmap(), b)
}

// BytesToBlocks returns ceil(n/BS), with BytesToBlocks(0) == 0.
func BytesToBlocks(n int) int {
	return bytesToBlocks(n)
}
