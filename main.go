package main

import "github.com/knockgate/knockd/cmd"

func main() {
	cmd.Execute()
}
