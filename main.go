package main

import "github.com/jarz/rentagent/cmd/root"

func main() {
	root.Execute()
}
