package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tonimelisma/irdrive/internal/auth"
	"github.com/tonimelisma/irdrive/internal/config"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		exitOnError(err)
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", errorMessage(err))
	os.Exit(1)
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrReauthRequired):
		return "not logged in, run 'irdrive login' first"
	case errors.Is(err, config.ErrConfiguration):
		return err.Error() + " (see 'irdrive config show')"
	default:
		return err.Error()
	}
}
