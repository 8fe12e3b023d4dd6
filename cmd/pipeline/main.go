package main

import (
	"log"
	"os"
)

func main() {
	// Configure logging
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if err := rootCommand().Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
