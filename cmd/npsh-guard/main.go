package main

import (
	"npsh-guard/internal/cli"
)

func main() {
	cli.Execute()
}
