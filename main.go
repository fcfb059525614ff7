package main

import "catalogload/cmd"

func main() {
	cmd.Execute()
}
