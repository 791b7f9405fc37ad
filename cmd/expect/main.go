package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/praxiomlabs/expect/cmd/expect/command"
)

func main() {
	err := command.Root().Execute()
	if err == nil {
		return
	}
	var exitErr *command.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
