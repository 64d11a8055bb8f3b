package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/asimonov/blockfs/fs"
)

func main() {
	imagePath := os.Getenv("BLOCKFS_IMAGE")
	if len(os.Args) > 1 {
		imagePath = os.Args[1]
	}
	if imagePath == "" {
		log.Fatal("usage: blockfs <image-path> (or set BLOCKFS_IMAGE)")
	}

	st, err := fs.Open(imagePath)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	shell := &shell{st: st, cwd: "/"}
	shell.run(os.Stdin)
}

type shell struct {
	st  *fs.Storage
	cwd string
}

// resolve turns a command argument into an absolute image path, relative to
// the shell's current working directory when it is not already absolute.
func (sh *shell) resolve(p string) string {
	if strings.HasPrefix(p, "/") {
		return path.Clean(p)
	}
	return path.Clean(path.Join(sh.cwd, p))
}

func (sh *shell) run(in io.Reader) {
	reader := bufio.NewReader(in)
	for {
		fmt.Printf("%s> ", sh.cwd)
		args, err := loadCommand(reader)
		if err != nil {
			if err == io.EOF {
				return
			}
			continue
		}

		switch strings.ToLower(args[0]) {
		case "exit", "quit":
			return
		case "pwd":
			fmt.Println(sh.cwd)
		case "cd":
			sh.cmdCd(args)
		case "ls":
			sh.cmdLs(args)
		case "mkdir":
			sh.cmdMkdir(args)
		case "rmdir":
			sh.cmdRmdir(args)
		case "rm":
			sh.cmdRm(args)
		case "mv":
			sh.cmdMv(args)
		case "cp":
			sh.cmdCp(args)
		case "cat":
			sh.cmdCat(args)
		case "stat":
			sh.cmdStat(args)
		case "info":
			sh.cmdInfo(args)
		case "truncate":
			sh.cmdTruncate(args)
		case "incp":
			sh.cmdIncp(args)
		case "outcp":
			sh.cmdOutcp(args)
		default:
			fmt.Println("unknown command: " + args[0])
		}
	}
}

func (sh *shell) cmdCd(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: cd <path>")
		return
	}
	target := sh.resolve(args[1])
	st, err := sh.st.Stat(target)
	if err != nil {
		fmt.Println("cd: " + err.Error())
		return
	}
	if st.Mode&fs.ModeDir == 0 {
		fmt.Println("cd: not a directory")
		return
	}
	sh.cwd = target
}

func (sh *shell) cmdLs(args []string) {
	target := sh.cwd
	if len(args) == 2 {
		target = sh.resolve(args[1])
	}
	names, err := sh.st.List(target)
	if err != nil {
		fmt.Println("ls: " + err.Error())
		return
	}
	for _, name := range names {
		st, err := sh.st.Stat(path.Join(target, name))
		if err != nil {
			fmt.Println(name)
			continue
		}
		kind := "f"
		if st.Mode&fs.ModeDir != 0 {
			kind = "d"
		}
		fmt.Printf("%s %8d %s\n", kind, st.Size, name)
	}
}

func (sh *shell) cmdMkdir(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: mkdir <path>")
		return
	}
	if err := sh.st.Mkdir(sh.resolve(args[1])); err != nil {
		fmt.Println("mkdir: " + err.Error())
	}
}

func (sh *shell) cmdRmdir(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: rmdir <path>")
		return
	}
	if err := sh.st.Rmdir(sh.resolve(args[1])); err != nil {
		fmt.Println("rmdir: " + err.Error())
	}
}

func (sh *shell) cmdRm(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: rm <path>")
		return
	}
	if err := sh.st.Unlink(sh.resolve(args[1])); err != nil {
		fmt.Println("rm: " + err.Error())
	}
}

func (sh *shell) cmdMv(args []string) {
	if len(args) != 3 {
		fmt.Println("usage: mv <from> <to>")
		return
	}
	if err := sh.st.Rename(sh.resolve(args[1]), sh.resolve(args[2])); err != nil {
		fmt.Println("mv: " + err.Error())
	}
}

func (sh *shell) cmdCp(args []string) {
	if len(args) != 3 {
		fmt.Println("usage: cp <src> <dst>")
		return
	}
	src := sh.resolve(args[1])
	st, err := sh.st.Stat(src)
	if err != nil {
		fmt.Println("cp: " + err.Error())
		return
	}
	if st.Mode&fs.ModeDir != 0 {
		fmt.Println("cp: cannot copy a directory")
		return
	}
	data := make([]byte, st.Size)
	if st.Size > 0 {
		if _, err := sh.st.Read(src, data, 0); err != nil {
			fmt.Println("cp: " + err.Error())
			return
		}
	}

	dst := sh.resolve(args[2])
	if err := sh.st.Mknod(dst, fs.ModeReg|0o644); err != nil {
		fmt.Println("cp: " + err.Error())
		return
	}
	if len(data) == 0 {
		return
	}
	if _, err := sh.st.Write(dst, data, 0); err != nil {
		fmt.Println("cp: " + err.Error())
	}
}

func (sh *shell) cmdCat(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: cat <path>")
		return
	}
	target := sh.resolve(args[1])
	st, err := sh.st.Stat(target)
	if err != nil {
		fmt.Println("cat: " + err.Error())
		return
	}
	if st.Mode&fs.ModeDir != 0 {
		fmt.Println("cat: is a directory")
		return
	}
	buf := make([]byte, st.Size)
	if _, err := sh.st.Read(target, buf, 0); err != nil {
		fmt.Println("cat: " + err.Error())
		return
	}
	os.Stdout.Write(buf)
	fmt.Println()
}

func (sh *shell) cmdStat(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: stat <path>")
		return
	}
	st, err := sh.st.Stat(sh.resolve(args[1]))
	if err != nil {
		fmt.Println("stat: " + err.Error())
		return
	}
	fmt.Printf("inum=%d mode=%o links=%d size=%d blocks=%d\n", st.Inum, st.Mode, st.Links, st.Size, st.Blocks)
}

func (sh *shell) cmdInfo(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: info <path>")
		return
	}
	st, err := sh.st.Stat(sh.resolve(args[1]))
	if err != nil {
		fmt.Println("info: " + err.Error())
		return
	}
	fmt.Printf("inode: %d\n", st.Inum)
	fmt.Printf("size: %d\n", st.Size)
	fmt.Printf("links: %d\n", st.Links)
	fmt.Printf("blocks: %d\n", st.Blocks)
	fmt.Printf("is directory: %v\n", st.Mode&fs.ModeDir != 0)
}

func (sh *shell) cmdTruncate(args []string) {
	if len(args) != 3 {
		fmt.Println("usage: truncate <path> <size>")
		return
	}
	size, err := strconv.Atoi(args[2])
	if err != nil {
		fmt.Println("truncate: " + err.Error())
		return
	}
	if err := sh.st.Truncate(sh.resolve(args[1]), size); err != nil {
		fmt.Println("truncate: " + err.Error())
	}
}

func (sh *shell) cmdIncp(args []string) {
	if len(args) != 3 {
		fmt.Println("usage: incp <host-path> <image-path>")
		return
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		fmt.Println("incp: " + err.Error())
		return
	}
	dest := sh.resolve(args[2])
	if err := sh.st.Mknod(dest, fs.ModeReg|0o644); err != nil {
		fmt.Println("incp: " + err.Error())
		return
	}
	if len(data) == 0 {
		return
	}
	if _, err := sh.st.Write(dest, data, 0); err != nil {
		fmt.Println("incp: " + err.Error())
	}
}

func (sh *shell) cmdOutcp(args []string) {
	if len(args) != 3 {
		fmt.Println("usage: outcp <image-path> <host-path>")
		return
	}
	src := sh.resolve(args[1])
	st, err := sh.st.Stat(src)
	if err != nil {
		fmt.Println("outcp: " + err.Error())
		return
	}
	buf := make([]byte, st.Size)
	if st.Size > 0 {
		if _, err := sh.st.Read(src, buf, 0); err != nil {
			fmt.Println("outcp: " + err.Error())
			return
		}
	}
	if err := os.WriteFile(args[2], buf, 0644); err != nil {
		fmt.Println("outcp: " + err.Error())
	}
}
