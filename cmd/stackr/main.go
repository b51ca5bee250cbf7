package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/stackr-io/stackr/internal/cli"
)

func main() {
	err := cli.Execute()
	if err == nil {
		return
	}

	var exit *cli.ExitError
	if errors.As(err, &exit) {
		if exit.Err != nil {
			fmt.Fprintln(os.Stderr, "Error:", exit.Err)
		}
		os.Exit(exit.Code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
