// Command mosaic manages collaborative canvases from the command line.
package main

import (
	"os"

	"github.com/mesh-intelligence/mosaic/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
