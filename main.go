package main

import (
	"context"
	"fmt"
	"os"

	"msgboard/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "msgboard: %v\n", err)
		os.Exit(1)
	}
}
