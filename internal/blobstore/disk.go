package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Disk stores blobs as files under a base directory, one file per ref.
// Refs are random UUIDs, never derived from user input, so a ref can be
// used in a path without sanitization beyond the containment check.
type Disk struct {
	base string
}

// NewDisk creates the base directory if needed and returns a Disk store.
func NewDisk(base string) (*Disk, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &Disk{base: base}, nil
}

func (d *Disk) path(ref string) (string, bool) {
	// Reject anything that could escape the base directory.
	if ref == "" || strings.ContainsAny(ref, `/\`) || strings.Contains(ref, "..") {
		return "", false
	}
	return filepath.Join(d.base, ref), true
}

// Put writes the content to a fresh file and returns its ref.  The
// write goes through a temp file and a rename so a crash never leaves a
// half-written blob behind a live ref.
func (d *Disk) Put(_ context.Context, r io.Reader) (string, error) {
	ref := uuid.NewString()
	final := filepath.Join(d.base, ref)

	tmp, err := os.CreateTemp(d.base, ".upload-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return ref, nil
}

// Get opens the blob behind a ref.
func (d *Disk) Get(_ context.Context, ref string) (io.ReadCloser, error) {
	p, ok := d.path(ref)
	if !ok {
		return nil, ErrNotFound
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Exists reports whether the ref resolves to a stored blob.
func (d *Disk) Exists(_ context.Context, ref string) (bool, error) {
	p, ok := d.path(ref)
	if !ok {
		return false, nil
	}
	_, err := os.Stat(p)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
