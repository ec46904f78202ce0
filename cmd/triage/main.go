package main

import (
	"os"

	"github.com/nhle/inbox-triage/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
