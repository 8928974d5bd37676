package storage

import (
	"io"
)

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// Storage keeps flat files under one directory. Names returned by it are
// relative to that directory and never contain path separators.
type Storage interface {
	SaveFile(file io.Reader, info FileInfo) (string, error)
	// WriteFile creates name with data and fails with fs.ErrExist when the
	// name is taken.
	WriteFile(name string, data []byte) error
	OpenFile(name string) (io.ReadSeekCloser, error)
	DeleteFile(name string) error
	MoveFrom(src Storage, name string) (string, error)
	Path(name string) (string, error)
	Dir() string
}
