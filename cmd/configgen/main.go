package main

import (
	"flag"
	"log"

	"github.com/danmuck/ringdht/internal/config"
)

func main() {
	output := flag.String("output", "cmd/dhtnode/config.toml", "output path for the dhtnode config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "cmd/dhtnode/config.toml", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated dhtnode config at %s (id=%s store=%s)", *input, cfg.Service.ID, cfg.Store)
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote dhtnode config template to %s", *output)
}
