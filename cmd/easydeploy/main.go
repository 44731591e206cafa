package main

import "github.com/alvesdmateus/easydeploy/internal/cli/commands"

func main() {
	commands.Execute()
}
