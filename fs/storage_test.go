package fs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustOpen(t *testing.T) *Storage {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "image.bin"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStorageMknodReadWrite(t *testing.T) {
	r := require.New(t)
	st := mustOpen(t)

	r.NoError(st.Mknod("/file.txt", ModeReg|0o644))
	r.True(st.Access("/file.txt"))

	n, err := st.Write("/file.txt", []byte("hello world"), 0)
	r.NoError(err)
	r.Equal(11, n)

	buf := make([]byte, 11)
	n, err = st.Read("/file.txt", buf, 0)
	r.NoError(err)
	r.Equal(11, n)
	r.Equal("hello world", string(buf))
}

func TestStorageMknodRequiresExistingParent(t *testing.T) {
	r := require.New(t)
	st := mustOpen(t)

	err := st.Mknod("/missing/file.txt", ModeReg)
	r.ErrorIs(err, ErrNotFound)
}

func TestStorageMkdirAndList(t *testing.T) {
	r := require.New(t)
	st := mustOpen(t)

	r.NoError(st.Mkdir("/a"))
	r.NoError(st.Mkdir("/a/b"))
	r.NoError(st.Mknod("/a/b/c.txt", ModeReg))

	names, err := st.List("/a/b")
	r.NoError(err)
	r.Contains(names, "c.txt")
	r.Contains(names, ".")
	r.Contains(names, "..")
}

func TestStorageRmdirRejectsNonEmpty(t *testing.T) {
	r := require.New(t)
	st := mustOpen(t)

	r.NoError(st.Mkdir("/a"))
	r.NoError(st.Mknod("/a/f", ModeReg))

	err := st.Rmdir("/a")
	r.ErrorIs(err, ErrNotEmpty)

	r.NoError(st.Unlink("/a/f"))
	r.NoError(st.Rmdir("/a"))
	r.False(st.Access("/a"))
}

func TestStorageRmdirFreesTheInode(t *testing.T) {
	r := require.New(t)
	st := mustOpen(t)

	r.NoError(st.Mkdir("/a"))
	stat, err := st.Stat("/a")
	r.NoError(err)
	inum := int(stat.Inum)

	r.NoError(st.Rmdir("/a"))
	r.False(bitGet(st.dev.inodeBitmap(), inum))

	// A fresh mkdir+rmdir cycle must not exhaust the inode table: the same
	// slot (or another) should still be available for reuse.
	r.NoError(st.Mkdir("/b"))
}

func TestStorageUnlinkRejectsDirectory(t *testing.T) {
	r := require.New(t)
	st := mustOpen(t)

	r.NoError(st.Mkdir("/a"))
	err := st.Unlink("/a")
	r.ErrorIs(err, ErrIsDirectory)
	r.True(st.Access("/a"))
}

func TestStorageTruncateGrowAndShrink(t *testing.T) {
	r := require.New(t)
	st := mustOpen(t)
	r.NoError(st.Mknod("/f", ModeReg))

	r.NoError(st.Truncate("/f", 100))
	stat, err := st.Stat("/f")
	r.NoError(err)
	r.Equal(100, stat.Size)

	r.NoError(st.Truncate("/f", 10))
	stat, err = st.Stat("/f")
	r.NoError(err)
	r.Equal(10, stat.Size)
}

func TestStorageTruncateRejectsNegativeSize(t *testing.T) {
	r := require.New(t)
	st := mustOpen(t)
	r.NoError(st.Mknod("/f", ModeReg))
	r.NoError(st.Truncate("/f", 10))

	err := st.Truncate("/f", -1)
	r.ErrorIs(err, ErrInvalidArgument)

	stat, err := st.Stat("/f")
	r.NoError(err)
	r.Equal(10, stat.Size)
}

func TestStorageRenameFile(t *testing.T) {
	r := require.New(t)
	st := mustOpen(t)
	r.NoError(st.Mknod("/a", ModeReg))
	_, err := st.Write("/a", []byte("data"), 0)
	r.NoError(err)

	r.NoError(st.Rename("/a", "/b"))
	r.False(st.Access("/a"))
	r.True(st.Access("/b"))

	buf := make([]byte, 4)
	_, err = st.Read("/b", buf, 0)
	r.NoError(err)
	r.Equal("data", string(buf))
}

func TestStorageRenameFileIntoDirectoryKeepsName(t *testing.T) {
	r := require.New(t)
	st := mustOpen(t)
	r.NoError(st.Mkdir("/dst"))
	r.NoError(st.Mknod("/a.txt", ModeReg))

	r.NoError(st.Rename("/a.txt", "/dst"))
	r.False(st.Access("/a.txt"))
	r.True(st.Access("/dst/a.txt"))
}

func TestStorageRenameRejectsDirectoryIntoOwnSubtree(t *testing.T) {
	r := require.New(t)
	st := mustOpen(t)
	r.NoError(st.Mkdir("/a"))
	r.NoError(st.Mkdir("/a/b"))

	err := st.Rename("/a", "/a/b/moved")
	r.ErrorIs(err, ErrInvalidArgument)
}

func TestStorageUnlinkMissingFails(t *testing.T) {
	r := require.New(t)
	st := mustOpen(t)

	err := st.Unlink("/nope")
	r.ErrorIs(err, ErrNotFound)
}

func TestStorageMknodOnNonDirectoryParentFails(t *testing.T) {
	r := require.New(t)
	st := mustOpen(t)
	r.NoError(st.Mknod("/f", ModeReg))

	err := st.Mknod("/f/g", ModeReg)
	r.ErrorIs(err, ErrNotDirectory)
}
