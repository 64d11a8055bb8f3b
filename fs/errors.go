package fs

import (
	"errors"
	"syscall"
)

// Sentinel errors for the kinds distinguished internally by this package.
// Callers compare with errors.Is; the façade returns them wrapped rather
// than collapsing them, and ToErrno maps them to errno values.
var (
	// ErrNoSpace means a data or indirect block could not be allocated.
	ErrNoSpace = errors.New("no space left on device")
	// ErrNoInodes means the inode table is saturated.
	ErrNoInodes = errors.New("no free inodes")
	// ErrNotFound means a path component or directory entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument means a bad offset, length, name, or non-absolute path.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidState means an operation targeted a freed or out-of-range inode.
	ErrInvalidState = errors.New("invalid inode state")

	// ErrNotDirectory and ErrIsDirectory are façade-level conveniences layered
	// on top of the five kinds above; they let the CLI driver report
	// something more specific than -1.
	ErrNotDirectory = errors.New("not a directory")
	ErrIsDirectory  = errors.New("is a directory")
	ErrNotEmpty     = errors.New("directory not empty")
)

// ToErrno maps a sentinel error from this package to the syscall.Errno a
// FUSE bridge would report to the kernel. It returns (0, false) for errors
// that are not one of the kinds this package distinguishes.
func ToErrno(err error) (syscall.Errno, bool) {
	switch {
	case err == nil:
		return 0, false
	case errors.Is(err, ErrNoSpace):
		return syscall.ENOSPC, true
	case errors.Is(err, ErrNoInodes):
		return syscall.ENOMEM, true
	case errors.Is(err, ErrNotFound):
		return syscall.ENOENT, true
	case errors.Is(err, ErrInvalidArgument):
		return syscall.EINVAL, true
	case errors.Is(err, ErrInvalidState):
		return syscall.EBADF, true
	case errors.Is(err, ErrNotDirectory):
		return syscall.ENOTDIR, true
	case errors.Is(err, ErrIsDirectory):
		return syscall.EISDIR, true
	case errors.Is(err, ErrNotEmpty):
		return syscall.ENOTEMPTY, true
	default:
		return 0, false
	}
}
