package main

import "github.com/syntrixbase/coldtier/internal/cli"

func main() {
	cli.Execute()
}
