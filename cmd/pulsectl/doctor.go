package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulseworks/pulse-api/pkg/cache"
	"github.com/pulseworks/pulse-api/pkg/database"
	"github.com/pulseworks/pulse-api/pkg/storage"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment the API would start in",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := loadEnv()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			failures := 0
			check := func(name string, err error) {
				if err != nil {
					failures++
					fmt.Printf("FAIL  %-20s %v\n", name, err)
					return
				}
				fmt.Printf("ok    %s\n", name)
			}

			db, err := database.NewPostgres(cfg.Database)
			check("postgres", err)
			if err == nil {
				check("postgres ping", db.Ping())
				db.Close()
			}

			redisClient, err := cache.NewRedis(cfg.Redis)
			if err == nil {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				err = redisClient.Ping(ctx).Err()
				cancel()
				redisClient.Close()
			}
			// Redis is optional; flag it without failing the run.
			if err != nil {
				fmt.Printf("warn  %-20s %v (report caching disabled)\n", "redis", err)
			} else {
				fmt.Printf("ok    redis\n")
			}

			_, err = storage.NewLocalStorage(cfg.Reports.StorageDir)
			check("export storage", err)

			if cfg.JWT.Secret == "" || cfg.JWT.Secret == "dev_secret" {
				fmt.Printf("warn  %-20s using the development default\n", "jwt secret")
			} else {
				fmt.Printf("ok    jwt secret\n")
			}

			if cfg.Generator.APIKey == "" {
				fmt.Printf("warn  %-20s not configured, template generator in use\n", "generator")
			} else {
				fmt.Printf("ok    generator\n")
			}

			if failures > 0 {
				fmt.Printf("\n%d check(s) failed\n", failures)
				os.Exit(1)
			}
			fmt.Println("\nenvironment looks healthy")
			return nil
		},
	}
}
