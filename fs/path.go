package fs

import (
	"fmt"
	"strings"
)

// PathGetInode resolves an absolute path to its inode, walking directories
// from the root. "." and "..", where present, are ordinary directory
// entries (populated by DirectoryInit/DirectoryMkdir) and are resolved the
// same way as any other component name -- there is no special-casing here.
// It returns ErrNotFound if any component along the way does not exist, and
// ErrInvalidArgument if path is not absolute.
func (d *Device) PathGetInode(path string) (*Inode, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("path_get_inode %q: %w", path, ErrInvalidArgument)
	}
	node := d.GetInode(RootInum)
	if path == "/" {
		return node, nil
	}

	for _, comp := range strings.Split(path[1:], "/") {
		if comp == "" {
			continue
		}
		inum, err := d.DirectoryLookup(node, comp)
		if err != nil {
			return nil, fmt.Errorf("path_get_inode %q: %w", path, ErrNotFound)
		}
		node = d.GetInode(int(inum))
		if node == nil {
			return nil, fmt.Errorf("path_get_inode %q: %w", path, ErrInvalidState)
		}
	}
	return node, nil
}

// SplitParent splits path at its last "/" into a parent directory path
// (always starting with "/", never ending in one unless it is "/" itself)
// and the final component name. "/a/b/c.txt" -> ("/a/b", "c.txt");
// "/x" -> ("/", "x").
func SplitParent(path string) (parent, leaf string, err error) {
	if !strings.HasPrefix(path, "/") {
		return "", "", fmt.Errorf("split_parent %q: %w", path, ErrInvalidArgument)
	}
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return "", "", fmt.Errorf("split_parent %q: %w", path, ErrInvalidArgument)
	}
	i := strings.LastIndex(trimmed, "/")
	leaf = trimmed[i+1:]
	if leaf == "" {
		return "", "", fmt.Errorf("split_parent %q: %w", path, ErrInvalidArgument)
	}
	if i == 0 {
		parent = "/"
	} else {
		parent = trimmed[:i]
	}
	return parent, leaf, nil
}
