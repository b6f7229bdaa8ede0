// Command capture is the admin client for a capture data backend.
package main

import (
	"os"

	"github.com/mesh-intelligence/capture/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
