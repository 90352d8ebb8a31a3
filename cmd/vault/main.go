package main

import "github.com/emrgen/vault/cmd"

func main() {
	cmd.Execute()
}
