package relay

import (
	"context"
	"time"
)

type Stage int

const (
	StageIdle Stage = iota
	StageDownloading
	StageDownloaded
	StageUploading
	StageComplete
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageDownloading:
		return "downloading"
	case StageDownloaded:
		return "downloaded"
	case StageUploading:
		return "uploading"
	case StageComplete:
		return "complete"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Progress struct {
	Stage      Stage
	Title      string
	Downloaded int64
	// Total is -1 while the size is unknown.
	Total   int64
	Percent float64
	Elapsed time.Duration
	// Speed is the average throughput in bytes per second since the stage started.
	Speed float64
	// Err is set for StageFailed.
	Err error
}

// Reporter shows progress to the user. Errors are logged and otherwise ignored.
type Reporter interface {
	Report(ctx context.Context, p Progress) error
}

type ReporterFunc func(ctx context.Context, p Progress) error

func (f ReporterFunc) Report(ctx context.Context, p Progress) error { return f(ctx, p) }

type File struct {
	Path  string
	Name  string
	Title string
	Size  int64
}

// Uploader delivers the downloaded file to its destination. It must not keep a reference to the
// file after returning, the file is removed right away.
type Uploader interface {
	Upload(ctx context.Context, f File) error
}

type UploaderFunc func(ctx context.Context, f File) error

func (f UploaderFunc) Upload(ctx context.Context, file File) error { return f(ctx, file) }

// latest is a single-slot mailbox where a newer value replaces an unread older one.
type latest struct {
	ch chan Progress
}

func newLatest() *latest {
	return &latest{ch: make(chan Progress, 1)}
}

// publish must only be called from a single goroutine.
func (l *latest) publish(p Progress) {
	select {
	case l.ch <- p:
		return
	default:
	}
	select {
	case <-l.ch:
	default:
	}
	select {
	case l.ch <- p:
	default:
	}
}

func (l *latest) close() {
	close(l.ch)
}
