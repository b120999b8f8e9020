package main

import (
	"os"

	"github.com/edumoot/debugInfo/cmd/dwatch/cmds"
	"github.com/edumoot/debugInfo/pkg/logflags"
)

func main() {
	err := cmds.New().Execute()
	logflags.Close()
	if err != nil {
		os.Exit(1)
	}
}
