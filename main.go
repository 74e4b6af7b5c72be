package main

import "github.com/mselser95/crossvenue-arb/cmd"

func main() {
	cmd.Execute()
}
