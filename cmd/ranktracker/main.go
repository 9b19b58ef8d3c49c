package main

import (
	_ "time/tzdata"

	"shop-rank-tracker/internal/cli"
)

func main() {
	cli.Execute()
}
