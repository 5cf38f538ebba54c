package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/ThomasHabets/nbdtarget/config"
	"github.com/ThomasHabets/nbdtarget/fileout"
	"github.com/ThomasHabets/nbdtarget/internal/log"
	"github.com/ThomasHabets/nbdtarget/target"
)

const dataSuffix = ".data"

var errTerminal = errors.New("refusing to write archive data to a terminal")

type readWrapper struct {
	Child   io.Reader
	Counter *uint64
}

func (r *readWrapper) Read(p []byte) (int, error) {
	n, err := r.Child.Read(p)
	atomic.AddUint64(r.Counter, uint64(n))
	return n, err
}

// source is one backup target: a name and where its data comes from.
type source struct {
	name string
	path string
}

// parseSource accepts "name=path" or "path". "-" is standard input.
func parseSource(s string) (source, error) {
	name, path, found := strings.Cut(s, "=")
	if !found {
		path = s
		name = filepath.Base(s)
		if s == config.Stdout {
			name = "stdin"
		}
	}
	if name == "" || path == "" {
		return source{}, fmt.Errorf("bad source %q", s)
	}
	if strings.ContainsAny(name, `/\`) {
		return source{}, fmt.Errorf("source name %q must not contain a path separator", name)
	}
	return source{name: name, path: path}, nil
}

type backup struct {
	opts       *config.Options
	fs         afero.Fs
	stdin      io.Reader
	stdout     io.Writer
	isTerminal func() bool
	observer   target.Observer
}

// run writes all sources, then finishes the archive if there is one.
func (b *backup) run(sources []source) (err error) {
	var (
		w       fileout.Writer
		archive fileout.Archive
		files   *fileout.FileOut
	)
	if b.opts.ArchiveMode() {
		out, closer, aerr := b.archiveOutput()
		if aerr != nil {
			return aerr
		}
		defer func() {
			if cerr := closer.Close(); cerr != nil {
				err = multierror.Append(err, cerr)
			}
		}()
		switch b.opts.Format {
		case config.FormatTar:
			spool := ""
			if b.opts.Output != config.Stdout {
				spool = filepath.Dir(b.opts.Output)
			}
			archive = fileout.NewTarOut(out, b.fs, spool)
		default:
			archive = fileout.NewZipOut(out, b.opts.CompressionLevel)
		}
		w = archive
	} else {
		if err := b.fs.MkdirAll(b.opts.Output, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		files = fileout.NewFileOut(b.fs, fileout.WithFileMode(os.FileMode(b.opts.FileMode)))
		w = files
	}

	for _, src := range sources {
		if err := b.one(w, files, src); err != nil {
			if archive != nil {
				if aerr := archive.Abort(); aerr != nil {
					err = multierror.Append(err, aerr)
				}
			}
			return fmt.Errorf("backup of %q: %w", src.name, err)
		}
	}
	if archive != nil {
		return archive.Finish()
	}
	return nil
}

func (b *backup) archiveOutput() (io.Writer, io.Closer, error) {
	if b.opts.Output == config.Stdout {
		if b.isTerminal != nil && b.isTerminal() {
			return nil, nil, errTerminal
		}
		return b.stdout, io.NopCloser(nil), nil
	}
	f, err := b.fs.Create(b.opts.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("opening output archive %q: %w", b.opts.Output, err)
	}
	return f, f, nil
}

func (b *backup) open(src source) (io.Reader, io.Closer, error) {
	if src.path == config.Stdout {
		return b.stdin, io.NopCloser(nil), nil
	}
	f, err := b.fs.Open(src.path)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}

// one copies a single source. On failure in file mode the partial file is
// left in place.
func (b *backup) one(w fileout.Writer, files *fileout.FileOut, src source) error {
	in, inCloser, err := b.open(src)
	if err != nil {
		return err
	}
	defer log.CloseAndLogError(inCloser, src.path)

	member := src.name + dataSuffix
	final := filepath.Join(b.opts.Output, member)
	partial := fileout.PartialName(final)

	out, err := target.Resolve(b.opts.Target(), w, member, partial, b.observer)
	if err != nil {
		return err
	}

	var counter uint64
	if _, err := io.Copy(out, &readWrapper{Child: in, Counter: &counter}); err != nil {
		// An archive member stays open so that the Abort in run can drop it.
		if files != nil {
			if cerr := out.Close(); cerr != nil {
				err = multierror.Append(err, cerr)
			}
		}
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if files != nil {
		if err := files.Commit(partial, final); err != nil {
			return err
		}
	}
	log.Infof("wrote %s for %q", humanize.Bytes(atomic.LoadUint64(&counter)), src.name)
	return nil
}
