package main

import (
	"fmt"
	"os"

	"github.com/soyeahso/crewdesk/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	go autorestart.RestartOnChange()

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "crewdesk:", err)
		os.Exit(1)
	}
}
