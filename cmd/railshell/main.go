package main

import (
	"github.com/IcebergThings/railshell/cmd/railshell/commands"
)

func main() {
	commands.Execute()
}
