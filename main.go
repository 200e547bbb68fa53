package main

import (
	"os"

	"github.com/example/facesaas-client/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
