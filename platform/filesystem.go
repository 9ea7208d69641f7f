package platform

import "os"

// OsFileSystem is the default capability.FileSystem, backed by the os
// package. Directory/file modes follow the teacher's internal/utils
// constants (DirMode 0700, FileMode 0600), matching SPEC_FULL.md §6's
// "hidden-service dirs, mode 0700" and "auth_clients/ ... mode 0700".
type OsFileSystem struct{}

func NewOsFileSystem() *OsFileSystem { return &OsFileSystem{} }

// DirMode is the permission bits used for work-directory subtrees that
// must not be group/world readable (hidden-service dirs, auth_clients/).
const DirMode os.FileMode = 0700

// FileMode is the permission bits used for files containing secrets
// (torrc, the control auth cookie's consumer-side copies).
const FileMode os.FileMode = 0600

func (OsFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (OsFileSystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	return os.WriteFile(path, data, perm)
}

func (OsFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (OsFileSystem) Remove(path string) error {
	return os.Remove(path)
}

func (OsFileSystem) Chmod(path string, perm os.FileMode) error {
	return os.Chmod(path, perm)
}

func (OsFileSystem) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}
