package main

import (
	"github.com/dyike/StockChat/internal/cli"
)

func main() {
	cli.Run()
}
