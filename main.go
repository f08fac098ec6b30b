package main

import (
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/nlq/cmd"
)

func main() {
	_ = godotenv.Load() // loads .env if present, silently ignores if not
	cmd.Execute()
}
