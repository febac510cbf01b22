package main

import "audioscribe/cmd"

func main() {
	cmd.Execute()
}
