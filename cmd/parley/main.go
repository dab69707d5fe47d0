package main

import (
	"fmt"
	"os"

	"github.com/soyeahso/parley/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	// restarts a long-running gateway when the binary is rebuilt
	go autorestart.RestartOnChange()

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
