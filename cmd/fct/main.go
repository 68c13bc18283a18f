package main

import "github.com/beam-cloud/fct/pkg/commands"

func main() {
	commands.Execute()
}
