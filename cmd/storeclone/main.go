// Command storeclone replicates best-selling products from a source store
// into translated target stores.
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/roach88/storeclone/internal/cli"
)

func main() {
	// Tokens usually live in .env next to the config; a missing file is fine.
	_ = godotenv.Load()

	os.Exit(cli.GetExitCode(cli.Execute(context.Background())))
}
