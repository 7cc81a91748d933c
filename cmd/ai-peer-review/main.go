package main

import (
	"os"

	"github.com/dshills/ai-peer-review/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
