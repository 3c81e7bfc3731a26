// Package main is the entry point for the apiwatch application
package main

import "github.com/ethpandaops/apiwatch/cmd"

func main() {
	cmd.Execute()
}
