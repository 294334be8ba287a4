package main

import "github.com/brcamerge/brcamerge/cmd"

func main() {
	cmd.Execute()
}
