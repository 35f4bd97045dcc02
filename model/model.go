// Package model provides read-only access to the bundled pose model asset.
package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrEmptyModel is returned when the model file has no content
var ErrEmptyModel = errors.New("model file is empty")

// Mapping is a read-only memory mapping of a model file.  The mapped bytes
// must not be modified and remain valid until Close is called.
type Mapping struct {
	path string
	data []byte
	once sync.Once
}

// Map memory maps the model file read-only
func Map(path string) (*Mapping, error) {

	f, err := os.Open(path)

	if err != nil {
		return nil, fmt.Errorf("model file does not exist at %s, error: %w", path, err)
	}

	defer f.Close()

	info, err := f.Stat()

	if err != nil {
		return nil, fmt.Errorf("error getting model file info: %w", err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("model file %s is a directory", path)
	}

	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyModel, path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)

	if err != nil {
		return nil, fmt.Errorf("error memory mapping model file %s: %w", path, err)
	}

	return &Mapping{
		path: path,
		data: data,
	}, nil
}

// Bytes returns the mapped model content
func (m *Mapping) Bytes() []byte {
	return m.data
}

// Size returns the size of the model in bytes
func (m *Mapping) Size() int {
	return len(m.data)
}

// Name returns the file name of the model
func (m *Mapping) Name() string {
	return filepath.Base(m.path)
}

// Close unmaps the model, the bytes returned by Bytes must no longer be used
func (m *Mapping) Close() error {

	var err error

	m.once.Do(func() {
		err = unix.Munmap(m.data)
		m.data = nil
	})

	return err
}
