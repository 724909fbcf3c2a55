package main

import "github.com/agentic-research/regraft/cmd"

func main() {
	cmd.Execute()
}
