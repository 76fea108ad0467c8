package main

import "github.com/ppiankov/safezone/internal/cli"

func main() {
	cli.Execute()
}
