package fileout

// Not concurrency safe on the same ZipOut.

import (
	"io"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// onceCloser lets ZipOut end a member's deflate stream itself. The zip
// writer closes it again on the next header or on Finish; that second call
// returns the first result.
type onceCloser struct {
	io.WriteCloser
	closed bool
	err    error
}

func (c *onceCloser) Close() error {
	if !c.closed {
		c.closed = true
		c.err = c.WriteCloser.Close()
	}
	return c.err
}

type ZipOut struct {
	w        *zip.Writer
	member   io.Writer
	comp     *onceCloser
	name     string
	method   uint16
	finished bool
	now      func() time.Time
}

// NewZipOut writes a zip container to w. level is a flate level; 0 stores
// members uncompressed.
func NewZipOut(w io.Writer, level int) *ZipOut {
	z := &ZipOut{
		w:      zip.NewWriter(w),
		method: zip.Deflate,
		now:    time.Now,
	}
	if level == flate.NoCompression {
		z.method = zip.Store
		return z
	}
	z.w.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		fw, err := flate.NewWriter(out, level)
		if err != nil {
			return nil, err
		}
		z.comp = &onceCloser{WriteCloser: fw}
		return z.comp, nil
	})
	return z
}

func (z *ZipOut) Open(name string) error {
	if z.finished {
		return &OpenError{Op: "open member", Path: name, Err: ErrFinalized}
	}
	if z.member != nil {
		return &OpenError{Op: "open member", Path: name, Err: ErrBusy}
	}
	z.comp = nil
	m, err := z.w.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   z.method,
		Modified: z.now(),
	})
	if err != nil {
		return &OpenError{Op: "open member", Path: name, Err: err}
	}
	z.member = m
	z.name = name
	return nil
}

func (z *ZipOut) Write(data []byte) (int, error) {
	if z.member == nil {
		return 0, ErrNotOpen
	}
	return z.member.Write(data)
}

// Close ends the current member, including its compressed stream, so write
// errors for this member are reported here. The container stays usable.
func (z *ZipOut) Close() error {
	if z.member == nil {
		return nil
	}
	z.member = nil
	z.name = ""
	if z.comp != nil {
		if err := z.comp.Close(); err != nil {
			return err
		}
	}
	return z.w.Flush()
}

// Abort gives up on the container. A written zip member cannot be taken
// back, so the central directory is never written and the output is not a
// readable archive. Later Opens fail with ErrFinalized.
func (z *ZipOut) Abort() error {
	if z.finished {
		return nil
	}
	z.member = nil
	z.name = ""
	z.finished = true
	return z.w.Flush()
}

// Finish writes the central directory. The underlying io.Writer is not closed.
func (z *ZipOut) Finish() error {
	if z.finished {
		return nil
	}
	z.member = nil
	z.finished = true
	return z.w.Close()
}
