package resolver

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
)

const (
	DefaultTitle = "Video"
	UnknownSize  = "Unknown"
)

// Hosts are the file-host domains whose share links the resolution API understands.
var Hosts = []string{
	"terabox.com",
	"terabox.app",
	"teraboxapp.com",
	"1024tera.com",
	"mirrobox.com",
	"nephobox.com",
	"4funbox.com",
	"terabox.fun",
}

// IsLink reports whether text mentions one of Hosts, ignoring case.
func IsLink(text string) bool {
	text = strings.ToLower(text)
	return lo.SomeBy(Hosts, func(host string) bool { return strings.Contains(text, host) })
}

type ResolvedLink struct {
	SourceURL      string `json:"source_url"`
	DirectURL      string `json:"direct_url"`
	Title          string `json:"title"`
	SizeDescriptor string `json:"size"`
}

// SizeBytes parses the human size reported by the resolution API, such as "512 MB" or a raw
// byte count. ok is false when the size is unknown or unparsable.
func (l ResolvedLink) SizeBytes() (n int64, ok bool) {
	return ParseSize(l.SizeDescriptor)
}

func ParseSize(descriptor string) (int64, bool) {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" || strings.EqualFold(descriptor, UnknownSize) {
		return 0, false
	}
	n, err := humanize.ParseBytes(descriptor)
	if nil != err || n > 1<<62 {
		return 0, false
	}
	return int64(n), true
}
