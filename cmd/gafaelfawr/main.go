// Package main is the entry point for the gafaelfawr command.
package main

import (
	"os"

	"github.com/gafaelfawr/gafaelfawr/cmd/gafaelfawr/app"
	"github.com/gafaelfawr/gafaelfawr/pkg/gflog"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		gflog.Errorf("%v", err)
		os.Exit(1)
	}
}
