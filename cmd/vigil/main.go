package main

import (
	"vigil/internal/app"

	"github.com/charmbracelet/log"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal("controller terminated", "error", err)
	}
}
