package main

import (
	stdlog "log"

	"tangohub-backend/internal/config"
	"tangohub-backend/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	srv := server.New(cfg)

	if err := srv.Initialize(); err != nil {
		srv.Echo.Logger.Fatal(err)
	}

	srv.Echo.Logger.Fatal(srv.Start())
}
