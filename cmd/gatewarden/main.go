// Package main is the entry point for the gatewarden reference server.
package main

import (
	"os"

	"github.com/gatewarden/gatewarden/cmd/gatewarden/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
