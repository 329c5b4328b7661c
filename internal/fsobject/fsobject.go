// Package fsobject holds the immutable value model for indexed filesystem
// entries: files and directories, and their round-trips to/from stat
// results, database rows, and wire nodes.
package fsobject

import (
	"os"
	"path"
	"time"
)

// Kind discriminates a file from a directory.
type Kind int

const (
	File Kind = iota
	Dir
)

// Object is an immutable value for a single filesystem entry, equal to
// another Object iff same kind, same full path, same create/modify time and
// same size. It is never shared across goroutines; callers that need to
// hand one off copy it by value.
type Object struct {
	BasePath   string
	RelPath    string
	Name       string
	CreateDate time.Time
	ModifyDate time.Time
	Size       int64
	Kind       Kind
}

// IsDir reports whether this object is a directory.
func (o Object) IsDir() bool { return o.Kind == Dir }

// IsFile reports whether this object is a file.
func (o Object) IsFile() bool { return o.Kind == File }

// FullPath returns the absolute path of the entry (BasePath joined with
// RelPath).
func (o Object) FullPath() string {
	if o.RelPath == "." || o.RelPath == "" {
		return o.BasePath
	}
	return path.Join(o.BasePath, o.RelPath)
}

// Equal reports full-value equality: same kind, same full path, same
// create/modify time, same size.
func (o Object) Equal(other Object) bool {
	return o.Kind == other.Kind &&
		o.FullPath() == other.FullPath() &&
		o.CreateDate.Equal(other.CreateDate) &&
		o.ModifyDate.Equal(other.ModifyDate) &&
		o.Size == other.Size
}

// Changed is the looser relation that ignores CreateDate. The scan's
// modified-event decision uses Equal, not Changed.
func (o Object) Changed(other Object) bool {
	return o.FullPath() != other.FullPath() ||
		!o.ModifyDate.Equal(other.ModifyDate) ||
		o.Size != other.Size
}

// FromStat constructs an Object from an os.FileInfo obtained while walking
// basePath/relPath. Directories always report size 0.
func FromStat(basePath, relPath string, info os.FileInfo) Object {
	kind := File
	var size int64
	if info.IsDir() {
		kind = Dir
	} else {
		size = info.Size()
	}
	modTime := info.ModTime()
	return Object{
		BasePath:   basePath,
		RelPath:    relPath,
		Name:       path.Base(relPath),
		CreateDate: createTime(info),
		ModifyDate: modTime,
		Size:       size,
		Kind:       kind,
	}
}

// Row is the shape an Object is reconstructed from when read back out of
// the fsentries table (see internal/store).
type Row struct {
	BasePath   string
	RelPath    string
	Name       string
	Size       int64
	CreateTime time.Time
	ModifyTime time.Time
	IsDir      bool
}

// FromRow reconstructs an Object from a persisted IndexEntry row.
func FromRow(r Row) Object {
	kind := File
	if r.IsDir {
		kind = Dir
	}
	return Object{
		BasePath:   r.BasePath,
		RelPath:    r.RelPath,
		Name:       r.Name,
		CreateDate: r.CreateTime,
		ModifyDate: r.ModifyTime,
		Size:       r.Size,
		Kind:       kind,
	}
}

// RootDir returns the virtual root directory object of a base path.
func RootDir(basePath string) Object {
	return Object{
		BasePath:   basePath,
		RelPath:    ".",
		Name:       "",
		Kind:       Dir,
	}
}
