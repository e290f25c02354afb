package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wiesioai/wiesio/internal/profile"
	"github.com/wiesioai/wiesio/server"
	"github.com/wiesioai/wiesio/store"
	"github.com/wiesioai/wiesio/store/db"
)

const version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "wiesio",
		Short: "Segmentation chat with a persistent conversation directory.",
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the conversation directory API.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := serve(loadProfile()); err != nil {
				slog.Error("failed to serve", slog.String("error", err.Error()))
				os.Exit(1)
			}
		},
	}
)

func init() {
	viper.SetDefault("mode", "demo")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "demo", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", `database driver, "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")

	for _, key := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("wiesio")
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, chatCmd)
}

// serve runs the directory API until SIGINT or SIGTERM.
func serve(instanceProfile *profile.Profile) error {
	if err := instanceProfile.Validate(); err != nil {
		return errors.Wrap(err, "invalid profile")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return errors.Wrap(err, "failed to create db driver")
	}
	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		storeInstance.Close()
		return errors.Wrap(err, "failed to migrate")
	}

	s, err := server.NewServer(ctx, instanceProfile, storeInstance)
	if err != nil {
		storeInstance.Close()
		return errors.Wrap(err, "failed to create server")
	}

	c := make(chan os.Signal, 1)
	// Trigger graceful shutdown on SIGINT or SIGTERM.
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	if err := s.Start(ctx); err != nil {
		storeInstance.Close()
		return errors.Wrap(err, "failed to start server")
	}

	printGreetings(instanceProfile)

	<-c
	s.Shutdown(ctx)
	return nil
}

func loadProfile() *profile.Profile {
	p := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version,
	}
	p.FromEnv()
	return p
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("wiesio %s started successfully!\n", p.Version)
	if p.IsDev() {
		fmt.Fprintf(os.Stderr, "Development mode is enabled\n")
		if p.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", p.DSN)
		}
	}
	if p.Addr == "" {
		fmt.Printf("Directory API running on port %d\n", p.Port)
	} else {
		fmt.Printf("Directory API running on %s:%d\n", p.Addr, p.Port)
	}
}

func main() {
	// A missing .env is fine; the environment may already be set.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			slog.Warn("failed to load .env", slog.String("error", err.Error()))
		}
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
