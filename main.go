package main

import "github.com/iksnae/analyst-stream/cmd"

func main() {
	cmd.Execute()
}
