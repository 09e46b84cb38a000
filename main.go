package main

import (
	"fmt"
	"os"

	"go.rossh.dev/rossh/cmd"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "agent" {
		os.Exit(cmd.RunAgent(os.Args[2:]))
	}

	root := cmd.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
