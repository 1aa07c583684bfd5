package main

import "labeloo/cmd"

func main() {
	cmd.Execute()
}
