package main

import "trivy-plugin-exposure-risk/internal/commands"

func main() {
	commands.Execute()
}
