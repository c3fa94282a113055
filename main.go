package main

import "feedwatch/internal/cli"

func main() {
	cli.Execute()
}
