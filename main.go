package main

import "github.com/guestlens/guestlens/cmd"

func main() {
	cmd.Execute()
}
