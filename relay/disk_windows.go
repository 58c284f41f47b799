//go:build windows

package relay

import (
	"golang.org/x/sys/windows"
)

func freeSpace(dir string) (int64, error) {
	pathPtr, err := windows.UTF16PtrFromString(dir)
	if nil != err {
		return 0, err
	}
	var free uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &free, nil, nil); nil != err {
		return 0, err
	}
	return int64(free), nil //nolint:gosec
}
