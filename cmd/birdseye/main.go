package main

import "github.com/MeKo-Tech/birdseye/cmd/birdseye/cmd"

func main() {
	cmd.Execute()
}
