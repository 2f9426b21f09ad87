package main

import "github.com/OpenTraceLab/OpenTraceFault/cmd/otf/cmd"

func main() {
	cmd.Execute()
}
