package main

import (
	"fmt"
	"os"

	"github.com/02loveslollipop/sensorthings-metadata/services/harvester/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		os.Exit(1)
	}
}
