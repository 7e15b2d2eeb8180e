package main

import "github.com/vietddude/preconf-ingester/internal/cli"

func main() {
	cli.Execute()
}
