package storage

import (
	"io"
)

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// Storage holds downloaded videos while they are decoded.
type Storage interface {
	SaveFile(r io.Reader, info FileInfo) (string, error)
	DeleteFile(path string) error
	// Path resolves a stored name to a local file path.
	Path(name string) (string, error)
}
