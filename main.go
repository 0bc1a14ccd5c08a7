package main

import "github.com/briskdl/engine/cmd/briskctl"

func main() {
	briskctl.Execute()
}
