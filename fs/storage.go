package fs

import (
	"fmt"
	"sync"
)

// Storage is the storage façade (SF): the API an external FUSE bridge
// (out of scope for this package) calls to translate VFS upcalls into
// operations on a mounted image. Every exported method takes Storage's own
// mutex for its duration, so a caller that only ever goes through the
// façade gets single-writer semantics for free.
type Storage struct {
	mu  sync.Mutex
	dev *Device
}

// Open mounts the image at path and returns a ready façade.
func Open(path string) (*Storage, error) {
	dev, err := Mount(path)
	if err != nil {
		return nil, err
	}
	return &Storage{dev: dev}, nil
}

// Close flushes and releases the underlying mount.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Unmount()
}

// validateName rejects names too long to fit in a dirent's name field, or
// containing a path separator.
func validateName(name string) error {
	if name == "" || len(name) > DirNameLen-1 {
		return fmt.Errorf("name %q: %w", name, ErrInvalidArgument)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return fmt.Errorf("name %q: %w", name, ErrInvalidArgument)
		}
	}
	return nil
}

// Access reports whether path resolves to an existing inode.
func (s *Storage) Access(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.dev.PathGetInode(path)
	return err == nil
}

// Stat resolves path and returns its inode's stat information.
func (s *Storage) Stat(path string) (Stat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, err := s.dev.PathGetInode(path)
	if err != nil {
		return Stat{}, err
	}
	return s.dev.InodeStat(node)
}

// Read copies up to len(buf) bytes from path starting at off.
func (s *Storage) Read(path string, buf []byte, off int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, err := s.dev.PathGetInode(path)
	if err != nil {
		return -1, err
	}
	return s.dev.InodeRead(node, buf, off, len(buf))
}

// Write writes buf to path starting at off, growing the file as needed.
func (s *Storage) Write(path string, buf []byte, off int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, err := s.dev.PathGetInode(path)
	if err != nil {
		return -1, err
	}
	return s.dev.InodeWrite(node, buf, off, len(buf))
}

// Truncate grows or shrinks path to exactly size bytes.
func (s *Storage) Truncate(path string, size int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size < 0 {
		return fmt.Errorf("truncate %q: %w", path, ErrInvalidArgument)
	}
	node, err := s.dev.PathGetInode(path)
	if err != nil {
		return err
	}
	switch {
	case size > node.Size():
		return s.dev.GrowInode(node, size)
	case size < node.Size():
		_, err := s.dev.ShrinkInode(node, size)
		return err
	default:
		return nil
	}
}

// Mknod creates a new regular file (or device-less node of the given mode)
// at path. The parent directory must exist; path's leaf must not already
// name an entry, though this is the caller's responsibility to ensure --
// duplicates are accepted silently.
func (s *Storage) Mknod(path string, mode int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parentPath, leaf, err := SplitParent(path)
	if err != nil {
		return err
	}
	if err := validateName(leaf); err != nil {
		return err
	}
	parent, err := s.dev.PathGetInode(parentPath)
	if err != nil {
		return err
	}
	if !parent.IsDir() {
		return fmt.Errorf("mknod %q: %w", path, ErrNotDirectory)
	}

	node, err := s.dev.AllocInode(mode)
	if err != nil {
		return err
	}
	if err := s.dev.DirectoryPut(parent, leaf, node.Inum()); err != nil {
		s.dev.FreeInode(int(node.Inum()))
		return err
	}
	return nil
}

// Mkdir creates a new directory at path, populated with "." and "..".
func (s *Storage) Mkdir(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parentPath, leaf, err := SplitParent(path)
	if err != nil {
		return err
	}
	if err := validateName(leaf); err != nil {
		return err
	}
	parent, err := s.dev.PathGetInode(parentPath)
	if err != nil {
		return err
	}
	_, err = s.dev.DirectoryMkdir(parent, leaf)
	return err
}

// Unlink removes the directory entry at path, freeing its inode once the
// link count reaches zero. It rejects directories; use Rmdir for those.
func (s *Storage) Unlink(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.dev.PathGetInode(path)
	if err != nil {
		return err
	}
	if node.IsDir() {
		return fmt.Errorf("unlink %q: %w", path, ErrIsDirectory)
	}
	return s.unlinkLocked(path)
}

func (s *Storage) unlinkLocked(path string) error {
	parentPath, leaf, err := SplitParent(path)
	if err != nil {
		return err
	}
	parent, err := s.dev.PathGetInode(parentPath)
	if err != nil {
		return err
	}
	return s.dev.DirectoryDelete(parent, leaf)
}

// Rmdir removes the directory at path, but only if it holds no live entries
// beyond its own "." and "..".
func (s *Storage) Rmdir(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.dev.PathGetInode(path)
	if err != nil {
		return err
	}
	if !node.IsDir() {
		return fmt.Errorf("rmdir %q: %w", path, ErrNotDirectory)
	}
	// dnum=2 is the first entry beyond the synthetic "." (0) and ".." (1);
	// if DirectoryRead finds it, the directory holds more than those two.
	if _, err := s.dev.DirectoryRead(node, 2); err == nil {
		return fmt.Errorf("rmdir %q: %w", path, ErrNotEmpty)
	}

	parentPath, leaf, err := SplitParent(path)
	if err != nil {
		return err
	}
	parent, err := s.dev.PathGetInode(parentPath)
	if err != nil {
		return err
	}
	if err := s.dev.DirectoryDelete(parent, leaf); err != nil {
		return err
	}
	// DirectoryDelete only drops the link from the parent's dirent; a
	// directory's own "." entry keeps one more link alive forever, so an
	// empty directory has to be freed directly rather than left for its
	// link count to reach zero on its own.
	return s.dev.FreeInode(int(node.Inum()))
}

// Rename moves the file or directory at from to to. If from is a regular
// file and to already resolves to a directory, the move is into that
// directory keeping from's original leaf name; otherwise the move places
// the entry under SplitParent(to). Moving a directory is guarded against
// creating a cycle.
func (s *Storage) Rename(from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromDirPath, fromName, err := SplitParent(from)
	if err != nil {
		return err
	}
	fromDir, err := s.dev.PathGetInode(fromDirPath)
	if err != nil {
		return err
	}
	fromNode, err := s.dev.PathGetInode(from)
	if err != nil {
		return err
	}

	toDirPath, toName, err := SplitParent(to)
	if err != nil {
		return err
	}
	toDir, err := s.dev.PathGetInode(toDirPath)
	if err != nil {
		return err
	}

	if fromNode.IsReg() {
		if existingDir, err := s.dev.PathGetInode(to); err == nil && existingDir.IsDir() {
			toDir = existingDir
			toName = fromName
		}
	}

	if fromNode.IsDir() {
		if err := validateName(toName); err != nil {
			return err
		}
		if s.dev.isAncestor(toDir, fromNode.Inum()) || toDir.Inum() == fromNode.Inum() {
			return fmt.Errorf("rename %q -> %q: %w", from, to, ErrInvalidArgument)
		}
	} else if err := validateName(toName); err != nil {
		return err
	}

	if err := s.dev.DirectoryPut(toDir, toName, fromNode.Inum()); err != nil {
		return err
	}
	return s.dev.DirectoryDelete(fromDir, fromName)
}

// List returns the names of path's directory entries in slot order.
func (s *Storage) List(path string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, err := s.dev.PathGetInode(path)
	if err != nil {
		return nil, err
	}
	return s.dev.DirectoryList(node)
}
