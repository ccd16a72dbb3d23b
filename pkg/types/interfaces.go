package types

import "io/fs"

// FS abstracts the filesystem operations the injection pipeline needs.
// Production code uses the OS implementation; tests use an in-memory
// afero implementation; dry runs use a copy-on-write overlay so no
// live file is ever mutated.
type FS interface {
	// File operations
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error

	// Directory operations
	MkdirAll(path string, perm fs.FileMode) error
	ReadDir(name string) ([]fs.DirEntry, error)

	// Symlink operations
	Symlink(oldname, newname string) error
	Readlink(name string) (string, error)

	// Other operations
	Remove(name string) error
	Lstat(name string) (fs.FileInfo, error)
}
