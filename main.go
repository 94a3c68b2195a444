package main

import "localsearch-forecast/cli"

func main() {
	cli.Execute()
}
