package main

import "github.com/setupforge/setupforge/cmd/setupforge/cmd"

func main() {
	cmd.Execute()
}
