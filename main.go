package main

import "github.com/tverlabs/timekeep/cmd"

func main() {
	cmd.Execute()
}
