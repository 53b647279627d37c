package main

import "github.com/mselser95/polymarket-sportsbot/cmd"

func main() {
	cmd.Execute()
}
