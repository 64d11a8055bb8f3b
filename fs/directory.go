package fs

import (
	"bytes"
	"fmt"
)

// dirent field offsets within a 64-byte directory entry record.
const (
	direntOffName = 0
	direntOffInum = DirNameLen
)

// DirEntry is a decoded view of one directory-entry slot, as returned by
// DirectoryRead and DirectoryList. Unlike Inode it is a copy, not a live
// window -- directory entries are small and short-lived call results.
type DirEntry struct {
	Name string
	Inum int32
}

func decodeDirent(raw []byte) DirEntry {
	nameRaw := raw[direntOffName : direntOffName+DirNameLen]
	nul := bytes.IndexByte(nameRaw, 0)
	if nul == -1 {
		nul = DirNameLen
	}
	return DirEntry{
		Name: string(nameRaw[:nul]),
		Inum: le32(raw[direntOffInum:]),
	}
}

func encodeDirent(raw []byte, name string, inum int32) {
	for i := range raw {
		raw[i] = 0
	}
	copy(raw[direntOffName:direntOffName+DirNameLen], name)
	putLe32(raw[direntOffInum:], inum)
}

// DirectoryInit verifies the root directory and force-initializes it if it
// does not already exist as an allocated directory inode. Called once, at
// format time.
func (d *Device) DirectoryInit() error {
	ibm := d.inodeBitmap()
	node := d.GetInode(RootInum)
	if bitGet(ibm, RootInum) && node.IsDir() {
		return nil
	}

	bitSet(ibm, RootInum)
	raw := node.raw
	for i := range raw {
		raw[i] = 0
	}
	putLe32(raw[offInum:], RootInum)
	node.SetMode(ModeDir | 0o755)
	node.SetSize(0)

	if err := d.DirectoryPut(node, ".", RootInum); err != nil {
		return err
	}
	return d.DirectoryPut(node, "..", RootInum)
}

// lookupSlot linearly scans dir's entries for the first one whose name
// exactly matches name, returning its slot index or -1.
func (d *Device) lookupSlot(dir *Inode, name string) int {
	count := dir.Size() / DirentSize
	var raw [DirentSize]byte
	for i := 0; i < count; i++ {
		if n, err := d.InodeRead(dir, raw[:], i*DirentSize, DirentSize); err != nil || n != DirentSize {
			continue
		}
		if decodeDirent(raw[:]).Name == name {
			return i
		}
	}
	return -1
}

// DirectoryLookup returns the inode number bound to name in dir, or
// ErrNotFound if no such entry exists.
func (d *Device) DirectoryLookup(dir *Inode, name string) (int32, error) {
	idx := d.lookupSlot(dir, name)
	if idx < 0 {
		return -1, fmt.Errorf("lookup %q: %w", name, ErrNotFound)
	}
	var raw [DirentSize]byte
	if n, err := d.InodeRead(dir, raw[:], idx*DirentSize, DirentSize); err != nil || n != DirentSize {
		return -1, fmt.Errorf("lookup %q: %w", name, ErrNotFound)
	}
	return decodeDirent(raw[:]).Inum, nil
}

// DirectoryRead returns the dnum-th non-tombstone slot in dir, counting
// from 0. If fewer than dnum+1 live slots exist it returns ErrNotFound,
// with the returned DirEntry holding whatever the last slot scanned was --
// a documented convenience used by storage-level emptiness checks.
func (d *Device) DirectoryRead(dir *Inode, dnum int) (DirEntry, error) {
	count := -1
	var last DirEntry
	total := dir.Size() / DirentSize
	var raw [DirentSize]byte
	for i := 0; count < dnum && i < total; i++ {
		n, err := d.InodeRead(dir, raw[:], i*DirentSize, DirentSize)
		if err == nil && n == DirentSize {
			e := decodeDirent(raw[:])
			if e.Inum != 0 {
				count++
				last = e
			}
		}
	}
	if count < dnum {
		return last, fmt.Errorf("directory read %d: %w", dnum, ErrNotFound)
	}
	return last, nil
}

// DirectoryPut inserts a name -> inum binding into dir, reusing the first
// tombstone slot if one exists or appending a new slot otherwise, and
// increments the target inode's link count. Both dir and the target inode
// (by inum) must be valid. Names longer than DirNameLen-1 bytes and
// duplicate names are caller responsibilities.
//
// A ".." entry is the one exception: it names its parent as a convenience
// for path resolution, but the parent's link count already accounts for
// its own "." entry and its entry in its own parent, so inserting a
// child's ".." does not bump it again. This matches a directory's link
// count always bottoming out at its own dirent in its parent plus its own
// "." entry, with no bookkeeping tying it to how many children it has.
func (d *Device) DirectoryPut(dir *Inode, name string, inum int32) error {
	target := d.GetInode(int(inum))
	if !d.InodeValid(dir) || !d.InodeValid(target) {
		return fmt.Errorf("put %q: %w", name, ErrInvalidState)
	}

	offset := dir.Size()
	count := dir.Size() / DirentSize
	var raw [DirentSize]byte
	for i := 0; i < count; i++ {
		if n, err := d.InodeRead(dir, raw[:], i*DirentSize, DirentSize); err == nil && n == DirentSize {
			if decodeDirent(raw[:]).Inum == 0 {
				offset = i * DirentSize
				break
			}
		}
	}

	encodeDirent(raw[:], name, inum)
	if _, err := d.InodeWrite(dir, raw[:], offset, DirentSize); err != nil {
		return fmt.Errorf("put %q: %w", name, err)
	}
	if name != ".." {
		target.SetLinks(target.Links() + 1)
	}
	return nil
}

// DirectoryDelete removes the entry named name from dir, decrementing the
// target inode's link count and freeing it if that count reaches zero. It
// fails with ErrNotFound if no such entry exists.
func (d *Device) DirectoryDelete(dir *Inode, name string) error {
	idx := d.lookupSlot(dir, name)
	if idx < 0 {
		return fmt.Errorf("delete %q: %w", name, ErrNotFound)
	}

	var raw [DirentSize]byte
	if n, err := d.InodeRead(dir, raw[:], idx*DirentSize, DirentSize); err != nil || n != DirentSize {
		return fmt.Errorf("delete %q: %w", name, ErrNotFound)
	}
	entry := decodeDirent(raw[:])

	target := d.GetInode(int(entry.Inum))
	if !d.InodeValid(target) {
		return fmt.Errorf("delete %q: %w", name, ErrInvalidState)
	}
	target.SetLinks(target.Links() - 1)
	if target.Links() <= 0 {
		if err := d.FreeInode(int(entry.Inum)); err != nil {
			return fmt.Errorf("delete %q: %w", name, err)
		}
	}

	var tomb [DirentSize]byte
	encodeDirent(tomb[:], "", 0)
	if _, err := d.InodeWrite(dir, tomb[:], idx*DirentSize, DirentSize); err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	return nil
}

// DirectoryList returns the names of dir's non-tombstone entries in
// ascending slot order.
func (d *Device) DirectoryList(dir *Inode) ([]string, error) {
	if !d.InodeValid(dir) || !dir.IsDir() {
		return nil, fmt.Errorf("list: %w", ErrNotDirectory)
	}
	count := dir.Size() / DirentSize
	names := make([]string, 0, count)
	var raw [DirentSize]byte
	for i := 0; i < count; i++ {
		if n, err := d.InodeRead(dir, raw[:], i*DirentSize, DirentSize); err != nil || n != DirentSize {
			continue
		}
		if e := decodeDirent(raw[:]); e.Inum != 0 {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// DirectoryMkdir allocates a new directory inode, links it into parent
// under name, and populates its own "." and ".." entries -- "." pointing
// at the new directory, ".." at parent.
func (d *Device) DirectoryMkdir(parent *Inode, name string) (*Inode, error) {
	if !d.InodeValid(parent) || !parent.IsDir() {
		return nil, fmt.Errorf("mkdir %q: %w", name, ErrNotDirectory)
	}

	child, err := d.AllocInode(ModeDir | 0o755)
	if err != nil {
		return nil, fmt.Errorf("mkdir %q: %w", name, err)
	}
	if err := d.DirectoryPut(parent, name, child.Inum()); err != nil {
		d.FreeInode(int(child.Inum()))
		return nil, fmt.Errorf("mkdir %q: %w", name, err)
	}
	if err := d.DirectoryPut(child, ".", child.Inum()); err != nil {
		return nil, fmt.Errorf("mkdir %q: %w", name, err)
	}
	if err := d.DirectoryPut(child, "..", parent.Inum()); err != nil {
		return nil, fmt.Errorf("mkdir %q: %w", name, err)
	}
	return child, nil
}

// isAncestor reports whether anc is candidate's own inum, or is reachable
// from candidate by following ".." links up to the root. It is the cycle
// guard rename uses before moving a directory: a rename that would place
// anc inside its own subtree (candidate lying under anc) is rejected.
func (d *Device) isAncestor(candidate *Inode, anc int32) bool {
	cur := candidate
	for steps := 0; steps < NINODES; steps++ {
		if cur.Inum() == anc {
			return true
		}
		if cur.Inum() == RootInum {
			return false
		}
		parentInum, err := d.DirectoryLookup(cur, "..")
		if err != nil {
			return false
		}
		cur = d.GetInode(int(parentInum))
		if cur == nil {
			return false
		}
	}
	return false
}
