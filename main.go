package main

import "github.com/cinequiz/apiserver/cmd"

func main() {
	cmd.Execute()
}
