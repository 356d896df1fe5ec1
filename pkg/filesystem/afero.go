package filesystem

import (
	"io"
	"io/fs"
	"os"

	"github.com/arthur-debert/modlink/pkg/types"
	"github.com/spf13/afero"
)

// aferoFS implements types.FS using afero
type aferoFS struct {
	fs afero.Fs
}

// NewAferoFS creates a new afero filesystem implementation. MemMapFs lacks
// real link support, so Link/Symlink degrade to content copies and marker
// files; sufficient for strategy and manifest tests that do not assert on
// link identity.
func NewAferoFS(fs afero.Fs) types.FS {
	return &aferoFS{fs: fs}
}

func (a *aferoFS) Stat(name string) (fs.FileInfo, error) {
	return a.fs.Stat(name)
}

func (a *aferoFS) Lstat(name string) (fs.FileInfo, error) {
	// Lstat is only meaningful on the OsFs; Stat is sufficient for tests.
	if lfs, ok := a.fs.(afero.Lstater); ok {
		info, _, err := lfs.LstatIfPossible(name)
		return info, err
	}
	return a.fs.Stat(name)
}

func (a *aferoFS) ReadFile(name string) ([]byte, error) {
	info, err := a.fs.Stat(name)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	return afero.ReadFile(a.fs, name)
}

func (a *aferoFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return afero.WriteFile(a.fs, name, data, perm)
}

func (a *aferoFS) Chmod(name string, mode fs.FileMode) error {
	return a.fs.Chmod(name, mode)
}

func (a *aferoFS) Open(name string) (io.ReadCloser, error) {
	return a.fs.Open(name)
}

func (a *aferoFS) Create(name string) (io.WriteCloser, error) {
	return a.fs.Create(name)
}

func (a *aferoFS) MkdirAll(path string, perm fs.FileMode) error {
	return a.fs.MkdirAll(path, perm)
}

func (a *aferoFS) ReadDir(name string) ([]fs.DirEntry, error) {
	entries, err := afero.ReadDir(a.fs, name)
	if err != nil {
		return nil, err
	}
	out := make([]fs.DirEntry, 0, len(entries))
	for _, info := range entries {
		out = append(out, fs.FileInfoToDirEntry(info))
	}
	return out, nil
}

func (a *aferoFS) Link(oldname, newname string) error {
	// No hardlink support in afero; copy the content instead.
	data, err := afero.ReadFile(a.fs, oldname)
	if err != nil {
		return err
	}
	info, err := a.fs.Stat(oldname)
	if err != nil {
		return err
	}
	return afero.WriteFile(a.fs, newname, data, info.Mode().Perm())
}

func (a *aferoFS) Symlink(oldname, newname string) error {
	if lfs, ok := a.fs.(afero.Linker); ok {
		return lfs.SymlinkIfPossible(oldname, newname)
	}
	// Simulate with a marker file carrying the target as content.
	return afero.WriteFile(a.fs, newname, []byte(oldname), 0777|os.ModeSymlink)
}

func (a *aferoFS) Readlink(name string) (string, error) {
	if lfs, ok := a.fs.(afero.LinkReader); ok {
		return lfs.ReadlinkIfPossible(name)
	}
	content, err := afero.ReadFile(a.fs, name)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func (a *aferoFS) Remove(name string) error {
	return a.fs.Remove(name)
}

func (a *aferoFS) RemoveAll(path string) error {
	return a.fs.RemoveAll(path)
}

func (a *aferoFS) Rename(oldpath, newpath string) error {
	return a.fs.Rename(oldpath, newpath)
}
