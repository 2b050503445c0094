// Package command provides the authmesh-cli command tree.
//
// Commands are built on urfave/cli/v2. Output goes to the App's Writer and
// honours the global --output flag.
package command
