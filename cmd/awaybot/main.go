package main

import (
	"os"

	"github.com/awaybot/awaybot/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
