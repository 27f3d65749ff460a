package main

import "github.com/mlrus/openr/cmd"

func main() {
	cmd.Execute()
}
