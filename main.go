package main

import "reelforge/cmd"

func main() {
	cmd.Execute()
}
