package main

import "github.com/oncostack/dvh-engine/internal/cli"

func main() {
	cli.Execute()
}
