package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pixeltennis/pixeltennis/internal/remote/gormstore"
	"github.com/pixeltennis/pixeltennis/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Run the journal REST server other pt installs sync with",
	Long: `Serve the remote journal API over HTTP, backed by Postgres or an embedded
SQLite database. Clients reach it with remote.mode=http.

Examples:
  pt serve --dsn "postgres://pt:pt@localhost:5432/pt?sslmode=disable"
  pt serve --dsn sqlite:///var/lib/pixeltennis/remote.db --addr :8787

Endpoints:
  GET    /healthz
  GET    /v1/users/{user}/profile      PATCH /v1/users/{user}/profile
  GET    /v1/users/{user}/logs         POST  /v1/users/{user}/logs/batch
  PUT    /v1/users/{user}/logs/{id}    DELETE /v1/users/{user}/logs/{id}`,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		if !cmd.Flags().Changed("addr") {
			addr = cfg.Server.Addr
		}
		dsn, _ := cmd.Flags().GetString("dsn")
		if dsn == "" {
			dsn = cfg.Server.DSN
		}
		if dsn == "" {
			fatalf("no database configured (set server.dsn or pass --dsn)")
		}

		opts := gormstore.DefaultOptions()
		opts.Logger = logger.With("component", "gormstore")
		st, err := gormstore.Open(dsn, opts)
		if err != nil {
			fatalf("failed to open database: %v", err)
		}
		defer st.Close()

		srvCfg := server.DefaultConfig()
		srvCfg.Addr = addr
		if len(cfg.Server.AllowedOrigins) > 0 {
			srvCfg.AllowedOrigins = cfg.Server.AllowedOrigins
		}
		srvCfg.Logger = logger.With("component", "server")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Printf("Serving on %s\n", addr)
		if err := server.New(st, srvCfg).ListenAndServe(ctx); err != nil {
			fatalf("server failed: %v", err)
		}
		fmt.Println("Server stopped")
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default server.addr, :8787)")
	serveCmd.Flags().String("dsn", "", "Postgres DSN or sqlite:///path (default server.dsn)")

	rootCmd.AddCommand(serveCmd)
}
