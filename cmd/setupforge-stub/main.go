package main

import "github.com/setupforge/setupforge/cmd/setupforge-stub/cmd"

func main() {
	cmd.Execute()
}
