package main

import "github.com/Yoga07/safe-farming/client/cmd"

func main() {
	cmd.Execute()
}
