package main

import "streamspace/cmd"

func main() {
	cmd.Execute()
}
