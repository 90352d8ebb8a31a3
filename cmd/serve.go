package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/emrgen/vault"
	"github.com/emrgen/vault/internal/cache"
	"github.com/emrgen/vault/internal/config"
	"github.com/emrgen/vault/internal/jobs"
	"github.com/emrgen/vault/internal/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd())
}

func serveCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "serve",
		Short: "serve the store over REST and run background jobs",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.LoadConfig()

			var kv cache.KV = cache.NewMemory()
			if cfg.RedisAddr != "" {
				kv = cache.NewRedis(cfg.RedisAddr)
			}

			v := vault.OpenWithCache(config.GetDb(cfg), kv)
			if err := v.Migrate(); err != nil {
				logrus.Fatalf("migration failed: %v", err)
			}

			runner := jobs.NewRunner(
				jobs.NewDueScan("@every 1m", v.Store(), v.Cards(), v.Tasks()),
			)
			runner.Start()
			defer runner.Stop()

			srv := server.NewServer(v, cfg.HTTPAddr)

			done := make(chan os.Signal, 1)
			signal.Notify(done, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-done
				if err := srv.Stop(); err != nil {
					logrus.Errorf("shutdown: %v", err)
				}
			}()

			if err := srv.Start(); err != nil {
				logrus.Fatalf("server failed: %v", err)
			}
		},
	}

	return command
}
