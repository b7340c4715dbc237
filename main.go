package main

import "github.com/lakafior/aio-abs-providers/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
