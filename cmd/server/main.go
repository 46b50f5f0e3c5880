package main

import (
	"errors"
	"flag"
	"io/fs"
	"log"

	"github.com/joho/godotenv"

	"github.com/simp-lee/denuncias-admin/internal/app"
	"github.com/simp-lee/denuncias-admin/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the configuration")
	flag.Parse()

	// Variables already set in the environment win over the dotenv file.
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal("failed to load env file: ", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal("failed to create app: ", err)
	}

	if err := a.Run(); err != nil {
		log.Fatal("server error: ", err)
	}
}
