package main

import (
	"os"

	"grimm.is/rampart/cmd"
	"grimm.is/rampart/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if err := cmd.Execute(); err != nil {
		printer.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

