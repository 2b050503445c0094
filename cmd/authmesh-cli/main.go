// Package main provides the entry point for authmesh-cli.
//
// authmesh-cli generates hub signing keys, enrolls identities into a badger
// identity store, logs in against a hub and reads its admin status.
package main

import (
	"os"

	"github.com/yndnr/authmesh-go/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		command.PrintError("%v", err)
		os.Exit(1)
	}
}
