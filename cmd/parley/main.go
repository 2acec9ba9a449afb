package main

import "github.com/Dicklesworthstone/parley/internal/cli"

func main() {
	cli.Execute()
}
