package fileout

// Not concurrency safe on the same TarOut.

import (
	"archive/tar"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
)

// TarOut writes a tar container. Tar headers carry the member size, so
// member data is spooled to a temp file and emitted on Close.
type TarOut struct {
	w        *tar.Writer
	fs       afero.Fs
	spoolDir string
	tmp      afero.File
	name     string
	finished bool
	now      func() time.Time
}

// NewTarOut writes a tar container to w, spooling members in spoolDir on fs.
func NewTarOut(w io.Writer, fs afero.Fs, spoolDir string) *TarOut {
	return &TarOut{
		w:        tar.NewWriter(w),
		fs:       fs,
		spoolDir: spoolDir,
		now:      time.Now,
	}
}

func (t *TarOut) Open(name string) error {
	if t.finished {
		return &OpenError{Op: "open member", Path: name, Err: ErrFinalized}
	}
	if t.tmp != nil {
		return &OpenError{Op: "open member", Path: name, Err: ErrBusy}
	}
	tmp, err := afero.TempFile(t.fs, t.spoolDir, "nbdtarget-")
	if err != nil {
		return &OpenError{Op: "open member", Path: name, Err: fmt.Errorf("creating spool file: %w", err)}
	}
	t.tmp = tmp
	t.name = name
	return nil
}

func (t *TarOut) Write(data []byte) (int, error) {
	if t.tmp == nil {
		return 0, ErrNotOpen
	}
	return t.tmp.Write(data)
}

// Close writes the spooled member into the container.
func (t *TarOut) Close() (err error) {
	if t.tmp == nil {
		return nil
	}
	tmp, name := t.tmp, t.name
	t.tmp = nil
	t.name = ""
	defer func() {
		if cerr := tmp.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
		if rerr := t.fs.Remove(tmp.Name()); rerr != nil {
			err = multierror.Append(err, rerr)
		}
	}()

	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("spool size: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek(0,0) in spool file: %w", err)
	}
	if err := t.w.WriteHeader(&tar.Header{
		Name:     name,
		Size:     size,
		Mode:     int64(defaultFileMode),
		ModTime:  t.now(),
		Typeflag: tar.TypeReg,
	}); err != nil {
		return err
	}
	if _, err := io.Copy(t.w, tmp); err != nil {
		return err
	}
	return t.w.Flush()
}

// Abort drops the open member without emitting it and writes the trailer,
// so the container holds only the members that were closed.
func (t *TarOut) Abort() error {
	if t.finished {
		return nil
	}
	var result error
	if t.tmp != nil {
		tmp := t.tmp
		t.tmp = nil
		t.name = ""
		if err := tmp.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		if err := t.fs.Remove(tmp.Name()); err != nil {
			result = multierror.Append(result, err)
		}
	}
	t.finished = true
	if err := t.w.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

// Finish writes the tar trailer. The underlying io.Writer is not closed.
func (t *TarOut) Finish() error {
	if t.finished {
		return nil
	}
	var result error
	if err := t.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	t.finished = true
	if err := t.w.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}
