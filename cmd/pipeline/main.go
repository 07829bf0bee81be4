package main

import (
	"os"

	"github.com/rickgao/options-data/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
