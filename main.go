package main

import "github.com/rotbotlabs/rotbot/cmd"

func main() {
	cmd.Execute()
}
