package fsobject

import (
	"fmt"
	"path"
	"strconv"
	"time"
)

// WireFields holds the fields the wire codec embeds for a file or
// directory node: rel-path, create/modify timestamps as UNIX-epoch floats
// with fractional seconds preserved, plus size for files. Directory nodes
// omit size.
type WireFields struct {
	RelPath         string
	BasePath        string
	Size            *int64
	CreateTimestamp string
	ModifyTimestamp string
}

// ToWire builds the WireFields for this object.
func (o Object) ToWire() WireFields {
	w := WireFields{
		RelPath:         o.RelPath,
		BasePath:        o.BasePath,
		CreateTimestamp: formatTimestamp(o.CreateDate),
		ModifyTimestamp: formatTimestamp(o.ModifyDate),
	}
	if o.IsFile() {
		size := o.Size
		w.Size = &size
	}
	return w
}

// formatTimestamp renders a time.Time as seconds-since-epoch with
// fractional seconds preserved.
func formatTimestamp(t time.Time) string {
	seconds := float64(t.UnixNano()) / 1e9
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}

// ParseTimestamp parses a wire timestamp string back into a time.Time.
func ParseTimestamp(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), nil
}

// FromWire reconstructs an Object from wire fields (round-trip used by
// pkg/client and tests). Kind must be supplied by the caller since the wire
// node shape (file vs dir) is what encodes it, not a field within.
func FromWire(basePath, relPath string, size int64, isDir bool, createTs, modifyTs string) (Object, error) {
	create, err := ParseTimestamp(createTs)
	if err != nil {
		return Object{}, err
	}
	modify, err := ParseTimestamp(modifyTs)
	if err != nil {
		return Object{}, err
	}
	kind := File
	if isDir {
		kind = Dir
		size = 0
	}
	return Object{
		BasePath:   basePath,
		RelPath:    relPath,
		Name:       path.Base(relPath),
		CreateDate: create,
		ModifyDate: modify,
		Size:       size,
		Kind:       kind,
	}, nil
}
