// Command ebuildkit is a QA scanner and metadata toolbox for
// source-based (ebuild) package repositories.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ebuildkit/ebuildkit/pkg/cliutil"
)

var argparser = cliutil.Group(
	"ebuildkit {[flags]|SUBCOMMAND...}",
	"Scan and maintain ebuild repositories",
)

func init() {
	cliutil.Setup(argparser)
}

func main() {
	ctx := context.Background()

	err := argparser.ExecuteContext(ctx)
	if err == nil {
		return
	}

	var usage *cliutil.UsageError
	if errors.As(err, &usage) {
		msg := strings.TrimRight(err.Error(), "\n")
		fmt.Fprintf(argparser.ErrOrStderr(), "%s: %s\nSee '%s --help' for more information.\n",
			argparser.CommandPath(), msg, argparser.CommandPath())
	} else {
		fmt.Fprintf(argparser.ErrOrStderr(), "%s: error: %v\n", argparser.CommandPath(), err)
	}
	os.Exit(cliutil.ExitCode(err))
}
