package constant

import (
	_ "embed"
	"fmt"
	"strings"
	"time"
)

const AppName = "teradl"

var (
	//go:embed version
	version     string
	Version     = strings.TrimSpace(version)
	compileTime = "2025-03-01T00:00:00Z"
	CompileTime time.Time
)

func init() {
	t, err := time.Parse(time.RFC3339, compileTime)
	if nil != err {
		panic(fmt.Errorf("could not parse compile time %q. Make sure it is set at build time with -ldflags: %v", compileTime, err))
	}
	CompileTime = t
}
