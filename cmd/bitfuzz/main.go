package main

import "github.com/OpenTraceLab/bitfuzz/cmd/bitfuzz/cmd"

func main() {
	cmd.Execute()
}
