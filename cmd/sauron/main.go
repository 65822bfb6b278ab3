package main

import "github.com/bryanchriswhite/SauronThermal/cmd/sauron/commands"

func main() {
	commands.Execute()
}
