// ABOUTME: Admin CLI for ward-gateway accounts and tokens
// ABOUTME: Works directly against the gateway's database and signing secret

package main

import (
	"os"

	"github.com/fatih/color"

	"github.com/2389/ward-gateway/cmd/ward-admin/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}
