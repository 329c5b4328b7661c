//go:build !linux

package fsobject

import (
	"os"
	"time"
)

// createTime falls back to ModTime on platforms without a Stat_t.Ctim field;
// the daemon targets Linux, this keeps the package buildable elsewhere.
func createTime(info os.FileInfo) time.Time {
	return info.ModTime()
}
