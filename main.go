package main

import "fmadb/cmd"

func main() {
	cmd.Execute()
}
