package main

import "github.com/digitalrebelz/arbitrage-app/cmd"

func main() {
	cmd.Execute()
}
