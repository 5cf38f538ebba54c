package fileout

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// PartialSuffix marks a plain output file that is still being written.
const PartialSuffix = ".partial"

const defaultFileMode os.FileMode = 0o600

var (
	// ErrBusy is returned by Open while a previous target is still open.
	ErrBusy = errors.New("writer already open")
	// ErrFinalized is returned by Open after an archive has been finished.
	ErrFinalized = errors.New("archive container already finalized")
	// ErrNotOpen is returned by Write on a writer that has no open target.
	ErrNotOpen = errors.New("writer not open")
)

// Writer is an output stream that is opened on exactly one target at a
// time. Open moves it from closed to open, Close flushes and moves it back.
type Writer interface {
	Open(path string) error
	io.WriteCloser
}

// OpenError records a failed Open and the target it was for.
type OpenError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// PartialName returns the in-progress name for a final file path.
func PartialName(fn string) string {
	return fn + PartialSuffix
}

// FinalName strips PartialSuffix, if present.
func FinalName(fn string) string {
	return strings.TrimSuffix(fn, PartialSuffix)
}

// FileOut writes plain files.
type FileOut struct {
	fs   afero.Fs
	mode os.FileMode
	f    afero.File
	path string
}

type FileOption func(*FileOut)

// WithFileMode sets the permissions of created files.
func WithFileMode(m os.FileMode) FileOption {
	return func(o *FileOut) {
		o.mode = m
	}
}

func NewFileOut(fs afero.Fs, opts ...FileOption) *FileOut {
	o := &FileOut{
		fs:   fs,
		mode: defaultFileMode,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *FileOut) Open(fn string) error {
	if o.f != nil {
		return &OpenError{Op: "open", Path: fn, Err: ErrBusy}
	}
	f, err := o.fs.OpenFile(fn, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, o.mode)
	if err != nil {
		return &OpenError{Op: "open", Path: fn, Err: err}
	}
	o.f = f
	o.path = fn
	return nil
}

// IsOpen reports whether a file is currently open.
func (o *FileOut) IsOpen() bool {
	return o.f != nil
}

// Path returns the name of the open file, or "" if closed.
func (o *FileOut) Path() string {
	return o.path
}

func (o *FileOut) Write(data []byte) (int, error) {
	if o.f == nil {
		return 0, ErrNotOpen
	}
	return o.f.Write(data)
}

func (o *FileOut) Close() error {
	if o.f == nil {
		return nil
	}
	f := o.f
	o.f = nil
	o.path = ""
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %q: %w", f.Name(), err)
	}
	return f.Close()
}

// Commit renames a closed partial file to its final name.
func (o *FileOut) Commit(partial, final string) error {
	if o.f != nil && o.path == partial {
		return fmt.Errorf("commit %q: %w", partial, ErrBusy)
	}
	if err := o.fs.Rename(partial, final); err != nil {
		return fmt.Errorf("rename %q to %q: %w", partial, final, err)
	}
	return nil
}

// Archive is a Writer whose targets are members of one container. Finish
// completes the container after the last member. Abort ends it after a
// failed member so the failed member never looks complete.
type Archive interface {
	Writer
	Finish() error
	Abort() error
}
