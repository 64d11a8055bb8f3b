package fs

import (
	"encoding/binary"
	"fmt"
	"os"
)

// field byte offsets within a 72-byte inode record.
const (
	offInum     = 0
	offMode     = 4
	offRefs     = 8
	offLinks    = 12
	offSize     = 16
	offDirect   = 20 // NDIRECT * 4 = 48 bytes
	offIndirect = offDirect + NDIRECT*4
)

// Inode is a typed window onto a 72-byte inode record living inside the
// device's inode-table region. It is not an independent object: every
// accessor reads or writes through raw, which aliases the device's mmap'd
// memory, so mutations are immediately visible to every other holder of the
// same inode number.
type Inode struct {
	dev *Device
	num int
	raw []byte
}

func le32(b []byte) int32      { return int32(binary.LittleEndian.Uint32(b)) }
func putLe32(b []byte, v int32) { binary.LittleEndian.PutUint32(b, uint32(v)) }

// Inum returns the inode's self-reported index.
func (n *Inode) Inum() int32 { return le32(n.raw[offInum:]) }

// Mode returns the inode's UNIX-style mode word, including type bits.
func (n *Inode) Mode() int32 { return le32(n.raw[offMode:]) }

// SetMode sets the inode's mode word.
func (n *Inode) SetMode(m int32) { putLe32(n.raw[offMode:], m) }

// Refs returns the in-memory reference-count hint. Never touched by any
// operation in this package.
func (n *Inode) Refs() int32 { return le32(n.raw[offRefs:]) }

// Links returns the inode's hard-link count.
func (n *Inode) Links() int32 { return le32(n.raw[offLinks:]) }

// SetLinks sets the inode's hard-link count.
func (n *Inode) SetLinks(l int32) { putLe32(n.raw[offLinks:], l) }

// Size returns the inode's byte-stream size.
func (n *Inode) Size() int { return int(le32(n.raw[offSize:])) }

// SetSize sets the inode's byte-stream size.
func (n *Inode) SetSize(s int) { putLe32(n.raw[offSize:], int32(s)) }

// Direct returns the k-th direct block pointer, k in [0, NDIRECT).
func (n *Inode) Direct(k int) int32 { return le32(n.raw[offDirect+4*k:]) }

// SetDirect sets the k-th direct block pointer.
func (n *Inode) SetDirect(k int, v int32) { putLe32(n.raw[offDirect+4*k:], v) }

// Indirect returns the indirect block pointer, or 0 if unallocated.
func (n *Inode) Indirect() int32 { return le32(n.raw[offIndirect:]) }

// SetIndirect sets the indirect block pointer.
func (n *Inode) SetIndirect(v int32) { putLe32(n.raw[offIndirect:], v) }

// IsDir reports whether the inode's mode has the directory type bit set.
func (n *Inode) IsDir() bool { return n.Mode()&ModeDir != 0 }

// IsReg reports whether the inode's mode has the regular-file type bit set.
func (n *Inode) IsReg() bool { return n.Mode()&ModeReg != 0 }

// inodeRaw returns the 72-byte window for inode i. The inode-table region is
// contiguous across block boundaries in the underlying image, exactly as it
// is in the on-disk layout, so this slices the device's backing array
// directly rather than going through per-block GetBlock calls.
func (d *Device) inodeRaw(i int) []byte {
	off := BS + i*inodeSize
	return d.data[off : off+inodeSize]
}

// GetInode returns the typed view of inode i iff 0 < i < NINODES; otherwise
// nil. It does not check whether the inode is allocated -- use InodeValid.
func (d *Device) GetInode(i int) *Inode {
	if i <= 0 || i >= NINODES {
		return nil
	}
	return &Inode{dev: d, num: i, raw: d.inodeRaw(i)}
}

// InodeValid reports whether node is non-nil, its inum is nonzero, and the
// inode bitmap bit at its inum is set.
func (d *Device) InodeValid(node *Inode) bool {
	if node == nil {
		return false
	}
	inum := node.Inum()
	if inum == 0 {
		return false
	}
	return bitGet(d.inodeBitmap(), int(inum))
}

// AllocInode finds the lowest clear bit in [2, NINODES), marks it in-use,
// and initializes a fresh inode record with the given mode. It fails with
// ErrNoInodes when the table is saturated.
func (d *Device) AllocInode(mode int32) (*Inode, error) {
	ibm := d.inodeBitmap()
	i := bitFindClear(ibm, 2, NINODES)
	if i == -1 {
		return nil, ErrNoInodes
	}
	bitSet(ibm, i)

	node := &Inode{dev: d, num: i, raw: d.inodeRaw(i)}
	for j := range node.raw {
		node.raw[j] = 0
	}
	putLe32(node.raw[offInum:], int32(i))
	node.SetMode(mode)
	return node, nil
}

// FreeInode shrinks the inode to zero length, releasing all of its blocks,
// and clears its inode bitmap bit. It is idempotent: freeing an
// already-free inode is a no-op.
func (d *Device) FreeInode(i int) error {
	ibm := d.inodeBitmap()
	if !bitGet(ibm, i) {
		return nil
	}
	node := d.GetInode(i)
	if _, err := d.ShrinkInode(node, 0); err != nil {
		return err
	}
	bitClear(ibm, i)
	return nil
}

// blockNumAt returns the block index stored in file-block slot k of node, or
// an error if k is out of range or the indirect block has not yet been
// allocated and k requires it.
func (d *Device) blockNumAt(node *Inode, k int) (int32, error) {
	if k < 0 || k >= NDIRECT+NINDIRECT {
		return 0, fmt.Errorf("block %d out of range: %w", k, ErrInvalidArgument)
	}
	if k < NDIRECT {
		return node.Direct(k), nil
	}
	if node.Indirect() == 0 {
		return 0, fmt.Errorf("indirect block not allocated: %w", ErrInvalidState)
	}
	ind := d.GetBlock(int(node.Indirect()))
	return le32(ind[(k-NDIRECT)*4:]), nil
}

// setBlockNumAt writes v into file-block slot k of node.
func (d *Device) setBlockNumAt(node *Inode, k int, v int32) error {
	if k < 0 || k >= NDIRECT+NINDIRECT {
		return fmt.Errorf("block %d out of range: %w", k, ErrInvalidArgument)
	}
	if k < NDIRECT {
		node.SetDirect(k, v)
		return nil
	}
	if node.Indirect() == 0 {
		return fmt.Errorf("indirect block not allocated: %w", ErrInvalidState)
	}
	ind := d.GetBlock(int(node.Indirect()))
	putLe32(ind[(k-NDIRECT)*4:], v)
	return nil
}

// inodeByteSpan returns the block bytes and within-block offset holding
// file byte off, which must already be backed by an allocated block (i.e.
// off < node.Size(), guaranteed by GrowInode before any write).
func (d *Device) inodeByteSpan(node *Inode, off int) ([]byte, int, error) {
	k := off / BS
	b, err := d.blockNumAt(node, k)
	if err != nil {
		return nil, 0, err
	}
	return d.GetBlock(int(b)), off % BS, nil
}

// GrowInode extends node to newSize, allocating direct and (if needed) the
// single indirect block on demand. newSize past MaxFileSize is not rejected
// outright: growth proceeds as far as the direct/indirect structure can
// reach, exactly as it would for an ordinary NO_SPACE/NO_INODES shortfall,
// and the excess is reported as the same kind of partial-grow failure. On
// any partial failure node.Size() lands on whatever block count it did
// manage to commit, rounded down to a block multiple -- never leaving an
// inconsistent block chain.
func (d *Device) GrowInode(node *Inode, newSize int) error {
	if !d.InodeValid(node) {
		return fmt.Errorf("grow: %w", ErrInvalidState)
	}
	if newSize < node.Size() {
		return fmt.Errorf("grow: new size %d < current size %d: %w", newSize, node.Size(), ErrInvalidArgument)
	}

	cur := bytesToBlocks(node.Size())
	tgt := bytesToBlocks(newSize)
	if tgt > NDIRECT+NINDIRECT {
		tgt = NDIRECT + NINDIRECT
	}

	for cur < tgt {
		if cur >= NDIRECT && node.Indirect() == 0 {
			ib, err := d.AllocBlock()
			if err != nil {
				node.SetSize(cur * BS)
				return fmt.Errorf("grow: %w", err)
			}
			node.SetIndirect(int32(ib))
		}

		b, err := d.AllocBlock()
		if err != nil {
			node.SetSize(cur * BS)
			return fmt.Errorf("grow: %w", err)
		}
		if err := d.setBlockNumAt(node, cur, int32(b)); err != nil {
			node.SetSize(cur * BS)
			return fmt.Errorf("grow: %w", err)
		}
		cur++
	}

	if newSize > MaxFileSize {
		node.SetSize(cur * BS)
		return fmt.Errorf("grow: size %d exceeds max file size %d: %w", newSize, MaxFileSize, ErrInvalidArgument)
	}

	node.SetSize(newSize)
	return nil
}

// ShrinkInode reduces node to newSize, freeing direct and (if no longer
// needed) the indirect block. It returns the new size.
func (d *Device) ShrinkInode(node *Inode, newSize int) (int, error) {
	if !d.InodeValid(node) {
		return 0, fmt.Errorf("shrink: %w", ErrInvalidState)
	}
	if newSize < 0 {
		return 0, fmt.Errorf("shrink: new size %d: %w", newSize, ErrInvalidArgument)
	}
	if newSize > node.Size() {
		return 0, fmt.Errorf("shrink: new size %d > current size %d: %w", newSize, node.Size(), ErrInvalidArgument)
	}

	cur := bytesToBlocks(node.Size())
	tgt := bytesToBlocks(newSize)

	for j := cur - 1; j >= tgt; j-- {
		b, err := d.blockNumAt(node, j)
		if err != nil {
			continue
		}
		if b != 0 {
			d.FreeBlock(int(b))
			d.setBlockNumAt(node, j, 0)
		}
	}

	if tgt <= NDIRECT && node.Indirect() != 0 {
		d.FreeBlock(int(node.Indirect()))
		node.SetIndirect(0)
	}

	node.SetSize(newSize)
	return newSize, nil
}

// InodeRead copies bytes [off, min(off+n, node.Size())) into buf, returning
// the number of bytes copied.
func (d *Device) InodeRead(node *Inode, buf []byte, off, n int) (int, error) {
	if !d.InodeValid(node) || off < 0 || n < 0 {
		return -1, fmt.Errorf("read: %w", ErrInvalidArgument)
	}

	i := 0
	for i < n {
		if node.Size() <= off+i {
			return i, nil
		}
		blk, boff, err := d.inodeByteSpan(node, off+i)
		if err != nil {
			return i, err
		}
		// copy the largest run that stays within both the source block and
		// the caller's requested range in one go.
		run := BS - boff
		if remaining := n - i; run > remaining {
			run = remaining
		}
		if avail := node.Size() - (off + i); run > avail {
			run = avail
		}
		copy(buf[i:i+run], blk[boff:boff+run])
		i += run
	}
	return i, nil
}

// InodeWrite writes n bytes from buf to node starting at off, growing the
// file as needed. If the grow partially succeeded, it writes only up to the
// new size. A write that manages to copy zero bytes returns an error rather
// than 0 -- the grow's error if growing failed, ErrNoSpace otherwise --
// matching the FUSE convention that write never returns 0 for a nonzero
// request.
func (d *Device) InodeWrite(node *Inode, buf []byte, off, n int) (int, error) {
	if !d.InodeValid(node) || off < 0 || n <= 0 {
		return -1, fmt.Errorf("write: %w", ErrInvalidArgument)
	}

	growErr := d.GrowInode(node, off+n)

	i := 0
	for i < n {
		if node.Size() <= off+i {
			break
		}
		blk, boff, err := d.inodeByteSpan(node, off+i)
		if err != nil {
			break
		}
		run := BS - boff
		if remaining := n - i; run > remaining {
			run = remaining
		}
		if avail := node.Size() - (off + i); run > avail {
			run = avail
		}
		copy(blk[boff:boff+run], buf[i:i+run])
		i += run
	}

	if i == 0 {
		if growErr != nil {
			return -1, growErr
		}
		return -1, fmt.Errorf("write: %w", ErrNoSpace)
	}
	return i, nil
}

// Stat is a POSIX stat-shaped summary of an inode. Timestamps are always
// zero: this file system does not track access/modification/change times.
type Stat struct {
	Inum    int32
	Mode    int32
	Links   int32
	Uid     uint32
	Gid     uint32
	BlkSize int
	Size    int
	Blocks  int
	Atime, Mtime, Ctime int64
}

// InodeStat populates a Stat for node using the host's uid/gid.
func (d *Device) InodeStat(node *Inode) (Stat, error) {
	if !d.InodeValid(node) {
		return Stat{}, fmt.Errorf("stat: %w", ErrInvalidState)
	}
	return Stat{
		Inum:    node.Inum(),
		Mode:    node.Mode(),
		Links:   node.Links(),
		Uid:     uint32(os.Getuid()),
		Gid:     uint32(os.Getgid()),
		BlkSize: BS,
		Size:    node.Size(),
		Blocks:  bytesToBlocks(node.Size()),
	}, nil
}
