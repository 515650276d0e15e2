package main

import "aptly-reconcile/internal/cli"

func main() {
	cli.Execute()
}
