package main

import (
	cmd "github.com/rohmanhakim/pod-crawler/internal/cli"
)

func main() {
	cmd.Execute()
}
