package tool

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"time"

	"github.com/bashkit/bashkit/interp"
	"github.com/bashkit/bashkit/vfs"
)

// resolvePath turns whatever relative-or-absolute path the interpreter
// hands a handler into the normalized absolute form [vfs.FS] keys its
// entries by, relative to the Runner's current directory.
func resolvePath(ctx context.Context, p string) string {
	return vfs.Clean(interp.HandlerCtx(ctx).Dir, p)
}

// fsHandlers adapts a *vfs.FS to the [interp.OpenHandlerFunc],
// [interp.StatHandlerFunc] and [interp.ReadDirHandlerFunc2] contracts, so a
// Runner never touches the host filesystem: every redirect, glob and stat a
// script performs lands in the session's VFS instead.
type fsHandlers struct {
	fs *vfs.FS
}

// fileInfo adapts a [vfs.Info] to [fs.FileInfo], which the interpreter's
// handler contracts require but vfs.Info does not implement directly (its
// fields would collide with the interface's method names).
type fileInfo struct{ vfs.Info }

func (i fileInfo) Name() string       { return path.Base(i.Path) }
func (i fileInfo) Size() int64        { return i.Info.Size }
func (i fileInfo) Mode() fs.FileMode  { return i.Info.Mode }
func (i fileInfo) ModTime() time.Time { return i.Info.ModTime }
func (i fileInfo) Sys() any           { return nil }

func (h fsHandlers) stat(ctx context.Context, name string, followSymlinks bool) (fs.FileInfo, error) {
	p := resolvePath(ctx, name)
	if followSymlinks {
		info, err := h.fs.Stat(p)
		if err != nil {
			return nil, &os.PathError{Op: "stat", Path: name, Err: err}
		}
		return fileInfo{info}, nil
	}
	info, err := h.fs.Lstat(p)
	if err != nil {
		return nil, &os.PathError{Op: "lstat", Path: name, Err: err}
	}
	return fileInfo{info}, nil
}

func (h fsHandlers) readDir(ctx context.Context, name string) ([]fs.DirEntry, error) {
	p := resolvePath(ctx, name)
	names, err := h.fs.ReadDir(p)
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: name, Err: err}
	}
	sort.Strings(names)
	entries := make([]fs.DirEntry, len(names))
	for i, n := range names {
		info, err := h.fs.Lstat(path.Join(p, n))
		if err != nil {
			return nil, &os.PathError{Op: "readdir", Path: name, Err: err}
		}
		entries[i] = fs.FileInfoToDirEntry(fileInfo{info})
	}
	return entries, nil
}

// vfsFile is the in-memory handle an open redirect reads from or writes
// into. Writes accumulate in buf and are flushed to the backing FS on
// Close, mirroring how [vfs.FS.WriteFile] already replaces a file's
// contents atomically rather than streaming them.
type vfsFile struct {
	fs       *vfs.FS
	path     string
	buf      bytes.Buffer
	reader   *bytes.Reader
	mode     fs.FileMode
	writable bool
	appendTo bool
}

func (h fsHandlers) open(ctx context.Context, name string, flag int, perm fs.FileMode) (io.ReadWriteCloser, error) {
	if name == os.DevNull {
		return devNull{}, nil
	}
	p := resolvePath(ctx, name)
	f := &vfsFile{fs: h.fs, path: p, mode: perm}
	switch {
	case flag&os.O_WRONLY != 0 || flag&os.O_RDWR != 0:
		f.writable = true
		f.appendTo = flag&os.O_APPEND != 0
		if flag&os.O_APPEND == 0 && flag&os.O_TRUNC == 0 {
			if data, err := h.fs.ReadFile(p); err == nil {
				f.buf.Write(data)
			}
		}
	default:
		data, err := h.fs.ReadFile(p)
		if err != nil {
			return nil, &os.PathError{Op: "open", Path: name, Err: err}
		}
		f.reader = bytes.NewReader(data)
	}
	return f, nil
}

func (f *vfsFile) Read(p []byte) (int, error) {
	if f.reader == nil {
		return 0, io.EOF
	}
	return f.reader.Read(p)
}

func (f *vfsFile) Write(p []byte) (int, error) {
	if !f.writable {
		return 0, os.ErrPermission
	}
	return f.buf.Write(p)
}

func (f *vfsFile) Close() error {
	if !f.writable {
		return nil
	}
	if f.appendTo {
		return f.fs.AppendFile(f.path, f.buf.Bytes(), f.mode)
	}
	return f.fs.WriteFile(f.path, f.buf.Bytes(), f.mode)
}

// devNull discards writes and reads as empty, matching /dev/null.
type devNull struct{}

func (devNull) Read([]byte) (int, error)  { return 0, io.EOF }
func (devNull) Write(p []byte) (int, error) { return len(p), nil }
func (devNull) Close() error              { return nil }
