package main

import "github.com/OmegaNetwork-source/omega-bridge/cmd"

func main() {
	cmd.Execute()
}
