package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"

	"iisctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintf(os.Stderr, "提示: %s\n", hint)
		}
		os.Exit(1)
	}
}
