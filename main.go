package main

import (
	"github.com/maxgio92/wattprof/pkg/cmd"
)

func main() {
	cmd.Execute()
}
