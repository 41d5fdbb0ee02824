package main

import "github.com/oshokin/cave-device/cmd/cave-commander/cmd"

func main() {
	cmd.Execute()
}
