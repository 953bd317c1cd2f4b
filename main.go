// ABOUTME: Entry point for the cuebox soundboard
// ABOUTME: Hands control to the cobra command tree
package main

import "github.com/harperreed/cuebox/cmd"

func main() {
	cmd.Execute()
}
