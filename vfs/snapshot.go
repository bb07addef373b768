package vfs

import (
	"bytes"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/pkg/diff"
)

// Snapshot is an opaque, deep-copied capture of an FS's entire state at a
// point in time. It round-trips byte-exactly through Restore: every path's
// kind, contents, symlink target, mode and modification time are preserved.
type Snapshot struct {
	entries map[string]snapEntry
}

type snapEntry struct {
	kind   Kind
	data   []byte
	target string
	mode   fs.FileMode
	mtime  time.Time
}

// Snapshot captures the current state of f.
func (f *FS) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entries := make(map[string]snapEntry, len(f.nodes))
	for p, n := range f.nodes {
		e := snapEntry{kind: n.kind, target: n.target, mode: n.mode, mtime: n.mtime}
		if n.data != nil {
			e.data = append([]byte(nil), n.data...)
		}
		entries[p] = e
	}
	return Snapshot{entries: entries}
}

// Restore atomically replaces f's entire state with s's. It is the inverse
// of Snapshot: for any sequence of mutations between the two calls,
// f.Restore(s) followed by f.Snapshot() is deep-equal to s.
func (f *FS) Restore(s Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	nodes := make(map[string]*node, len(s.entries))
	var total int64
	for p, e := range s.entries {
		n := &node{kind: e.kind, target: e.target, mode: e.mode, mtime: e.mtime, ctime: e.mtime}
		if e.data != nil {
			n.data = append([]byte(nil), e.data...)
			total += int64(len(n.data))
		}
		if e.kind == KindDir {
			n.entries = make(map[string]bool)
		}
		nodes[p] = n
	}
	for p := range nodes {
		if p == "/" {
			continue
		}
		if dn, ok := nodes[parent(p)]; ok && dn.kind == KindDir {
			dn.entries[base(p)] = true
		}
	}
	if _, ok := nodes["/"]; !ok {
		now := time.Now()
		nodes["/"] = &node{kind: KindDir, mode: fs.ModeDir | 0o755, mtime: now, ctime: now, entries: make(map[string]bool)}
	}
	f.nodes = nodes
	f.totalBytes = total
}

// ChangeKind classifies one entry's difference between two snapshots.
type ChangeKind uint8

const (
	ChangeAdded ChangeKind = iota
	ChangeRemoved
	ChangeModified
)

func (c ChangeKind) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	default:
		return "modified"
	}
}

// Change describes a single path that differs between two snapshots.
type Change struct {
	Path string
	Kind ChangeKind
}

// Diff compares two snapshots and reports every path whose presence,
// kind, content, target or mode changed, sorted by path. It supports the
// agent-trace debugging workflow of diffing a VFS before and after a
// script ran.
func Diff(a, b Snapshot) []Change {
	var out []Change
	seen := make(map[string]bool)
	for p, ea := range a.entries {
		seen[p] = true
		eb, ok := b.entries[p]
		if !ok {
			out = append(out, Change{Path: p, Kind: ChangeRemoved})
			continue
		}
		if !entryEqual(ea, eb) {
			out = append(out, Change{Path: p, Kind: ChangeModified})
		}
	}
	for p := range b.entries {
		if !seen[p] {
			out = append(out, Change{Path: p, Kind: ChangeAdded})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func entryEqual(a, b snapEntry) bool {
	return a.kind == b.kind && a.target == b.target && a.mode == b.mode && bytes.Equal(a.data, b.data)
}

// DiffText renders a unified diff of a single file's contents between two
// snapshots, for use by a `--show-diff` debugging flag. It returns an empty
// string if the path is unchanged or is not a regular file in both
// snapshots.
func DiffText(a, b Snapshot, path string) (string, error) {
	ea, okA := a.entries[path]
	eb, okB := b.entries[path]
	if !okA || !okB || ea.kind != KindFile || eb.kind != KindFile {
		return "", nil
	}
	if bytes.Equal(ea.data, eb.data) {
		return "", nil
	}
	var buf bytes.Buffer
	err := diff.Text(path+" (before)", path+" (after)", bytes.NewReader(ea.data), bytes.NewReader(eb.data), &buf)
	if err != nil {
		return "", fmt.Errorf("vfs: diff %s: %w", path, err)
	}
	return buf.String(), nil
}
