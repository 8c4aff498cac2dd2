package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vidshare/internal/api"
	"vidshare/internal/catalog"
	"vidshare/internal/config"
	"vidshare/internal/library"
	"vidshare/internal/logging"
	"vidshare/internal/notify"
	"vidshare/internal/storage"
	"vidshare/pkg/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:          "vidshare",
		Short:        "Video upload and streaming server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	f.Int("port", 5000, "HTTP listen port")
	f.String("upload-dir", "./uploads", "directory the videos are stored in")
	f.String("database-url", "", "postgres:// or sqlite:// catalog DSN; empty indexes the upload directory")
	f.Int64("min-bytes", 10<<20, "smallest accepted upload")
	f.Int64("max-bytes", 200<<20, "largest accepted upload")
	f.String("log-level", "info", "debug, info, warn or error")
	f.String("log-format", "json", "json or text")

	for key, flag := range map[string]string{
		config.KeyPort:           "port",
		config.KeyUploadDir:      "upload-dir",
		config.KeyDatabaseURL:    "database-url",
		config.KeyMinUploadBytes: "min-bytes",
		config.KeyMaxUploadBytes: "max-bytes",
		config.KeyLogLevel:       "log-level",
		config.KeyLogFormat:      "log-format",
	} {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	log := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)

	store, err := storage.NewStore(cfg.UploadDir)
	if err != nil {
		return err
	}
	if n, err := store.SweepPartials(); err != nil {
		log.Warn(ctx, "sweep partial uploads", "error", err)
	} else if n > 0 {
		log.Info(ctx, "removed partial uploads", "count", n)
	}

	policy := cfg.Policy()
	accept := func(name string) bool {
		return policy.CheckType(name, storage.ContentType(name)) == nil
	}

	cat, err := catalog.Open(ctx, catalog.Options{DSN: cfg.DatabaseURL, Store: store, Accept: accept}, log)
	if err != nil {
		return err
	}
	defer cat.Close()

	if _, err := catalog.Reconcile(ctx, cat, store, accept, log); err != nil {
		log.Warn(ctx, "reconcile catalog", "error", err)
	}

	hub := notify.NewHub(cfg.ClientOrigin, log)
	defer hub.Close()
	notifiers := notify.Multi{hub}
	if mail := cfg.Mail(); mail.Enabled() {
		m := notify.NewMailer(mail, log)
		defer m.Close()
		notifiers = append(notifiers, m)
		log.Info(ctx, "mail notifications enabled", "to", mail.To)
	}

	lib := library.NewService(store, cat, policy, notifiers, log)
	backend := catalog.Backend(cat)
	srv := api.NewServer(api.Options{
		Port:    cfg.ServerPort,
		Origin:  cfg.ClientOrigin,
		Backend: backend,
	}, lib, hub, log)

	localIP := utils.GetLocalIP()
	if localIP == "" {
		localIP = "127.0.0.1"
	}
	printBanner(cfg, localIP, store.Dir(), backend)

	if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info(context.Background(), "server stopped")
	return nil
}

func printBanner(cfg config.Config, localIP, uploadDir, backend string) {
	fmt.Printf("\n")
	fmt.Printf("╔══════════════════════════════════════════════════════╗\n")
	fmt.Printf("║                vidshare  — Ready!                    ║\n")
	fmt.Printf("╠══════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Local    : http://localhost:%-24d║\n", cfg.ServerPort)
	fmt.Printf("║  Network  : http://%s:%-*d║\n", localIP, 33-len(localIP), cfg.ServerPort)
	fmt.Printf("║  Uploads  : %-41s║\n", uploadDir)
	fmt.Printf("║  Catalog  : %-41s║\n", backend)
	fmt.Printf("║  Limits   : %-41s║\n", fmt.Sprintf("%s – %s",
		utils.FormatBytes(cfg.MinUploadBytes), utils.FormatBytes(cfg.MaxUploadBytes)))
	fmt.Printf("╚══════════════════════════════════════════════════════╝\n\n")
}
