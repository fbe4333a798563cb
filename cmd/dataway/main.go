// Package main implements the dataway CLI.
package main

func main() {
	Execute()
}
