package main

import "github.com/chainmint/issuer/internal/cli"

func main() {
	cli.Execute()
}
