package main

import "github.com/wxrelay/wxrelay/cmd"

func main() {
	cmd.Execute()
}
