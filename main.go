package main

import "github.com/omnibothq/omnibot/cmd"

func main() {
	cmd.Execute()
}
