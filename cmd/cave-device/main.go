package main

import "github.com/oshokin/cave-device/cmd/cave-device/cmd"

func main() {
	cmd.Execute()
}
