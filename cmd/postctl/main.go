package main

import "github.com/blackmichael/postboard/cmd/postctl/commands"

func main() {
	commands.Execute()
}
