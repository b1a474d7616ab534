package main

import "github.com/driftchat/drift/cmd/drift-cli/cmd"

func main() {
	cmd.Execute()
}
