package relay

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var ErrUploadTimeout = errors.New("upload timed out")

type TooLargeError struct {
	Size    int64
	Ceiling int64
	// Speculative is set when the size came from headers before anything was downloaded.
	Speculative bool
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("file of %s exceeds the %s limit", humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Ceiling))) //nolint:gosec
}

type InsufficientSpaceError struct {
	Need int64
	Free int64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space: need %s, have %s", humanize.IBytes(uint64(e.Need)), humanize.IBytes(uint64(e.Free))) //nolint:gosec
}

type DownloadHTTPError struct {
	StatusCode int
}

func (e *DownloadHTTPError) Error() string {
	return fmt.Sprintf("download failed: HTTP %d", e.StatusCode)
}

type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return "upload failed: " + e.Err.Error()
}

func (e *UploadError) Unwrap() error { return e.Err }
