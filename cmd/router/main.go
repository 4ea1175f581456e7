package main

import "github.com/vietddude/regionrouter/internal/cli"

func main() {
	cli.Execute()
}
