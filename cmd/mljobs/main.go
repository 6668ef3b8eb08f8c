package main

import (
	"github.com/tensorworks/mljobs/cmd/mljobs/cmd"
)

func main() {
	cmd.Execute()
}
