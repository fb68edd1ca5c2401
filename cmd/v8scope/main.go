package main

import (
	"os"

	"github.com/v8scope/v8scope/cmd/v8scope/cmds"
	"github.com/v8scope/v8scope/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.V8scopeVersion.Build = Build
	}
	if err := cmds.New(false).Execute(); err != nil {
		os.Exit(1)
	}
}
