package main

import (
	"os"

	"biliticket/possync/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
