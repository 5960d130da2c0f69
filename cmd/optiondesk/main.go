package main

import (
	"fmt"
	"os"

	"optiondesk/internal/cli"
	"optiondesk/internal/errors"
	"optiondesk/internal/logging"
)

func main() {
	// Console-only until the config names a log file.
	logger := logging.NewLoggerWithConfig(logging.LogConfig{Level: "info", Console: true})

	if err := cli.NewRootCmd(logger).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errors.ErrAuthExpired) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
