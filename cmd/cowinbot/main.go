package main

import (
	"log"

	corecmd "github.com/m3rciful/cowinbot/core/cmd"
	"github.com/m3rciful/cowinbot/internal/app"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        app.Load,
		Bootstrap:         app.Bootstrap,
	})
	if err != nil {
		log.Fatalf("cowinbot: %v", err)
	}
}
