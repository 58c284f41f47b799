package relay

func WithFreeSpace(fn func(dir string) (int64, error)) Option {
	return func(r *Relay) { r.freeSpace = fn }
}

var FileName = fileName
