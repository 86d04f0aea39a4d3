package main

import "github.com/mountly/mountly-backend/cmd/areactl/cmd"

func main() {
	cmd.Execute()
}
