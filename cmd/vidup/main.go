package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"vidshare/internal/admission"
	"vidshare/internal/client"
	"vidshare/internal/config"
	"vidshare/internal/models"
	"vidshare/internal/transfer"
	"vidshare/internal/ui"
	"vidshare/pkg/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("VIDUP")
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:          "vidup",
		Short:        "Upload, list and remove videos on a vidshare server",
		SilenceUsage: true,
	}
	bindFlags(v, root.PersistentFlags())

	newClient := func() (*client.Client, error) {
		return client.New(v.GetString("server"))
	}

	root.AddCommand(
		uploadCmd(v, newClient),
		listCmd(newClient),
		rmCmd(newClient),
		watchCmd(newClient),
	)
	return root
}

var clientPolicyKeys = config.PolicyKeys{
	MinBytes:   "min_bytes",
	MaxBytes:   "max_bytes",
	Types:      "allowed_types",
	Extensions: "allowed_extensions",
}

// bindFlags mirrors the server admission settings so files the server would
// refuse are rejected before any bytes are sent.
func bindFlags(v *viper.Viper, pf *pflag.FlagSet) {
	def := admission.DefaultPolicy()
	pf.String("server", "http://localhost:5000", "vidshare server URL (env VIDUP_SERVER)")
	pf.Int64("min-bytes", def.MinBytes, "smallest upload the server accepts")
	pf.Int64("max-bytes", def.MaxBytes, "largest upload the server accepts")
	pf.String("allowed-types", strings.Join(def.AllowedTypes, ","), "MIME types the server accepts, comma separated")
	pf.String("allowed-extensions", strings.Join(def.AllowedExtensions, ","), "file extensions the server accepts, comma separated")

	_ = v.BindPFlag("server", pf.Lookup("server"))
	for _, key := range []string{"min_bytes", "max_bytes", "allowed_types", "allowed_extensions"} {
		_ = v.BindPFlag(key, pf.Lookup(strings.ReplaceAll(key, "_", "-")))
		_ = v.BindEnv(key, "VIDUP_"+strings.ToUpper(key))
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func uploadCmd(v *viper.Viper, newClient func() (*client.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload one or more videos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			opts := transfer.DefaultOptions()
			opts.Policy = config.PolicyFrom(v, clientPolicyKeys)
			if err := opts.Policy.Validate(); err != nil {
				return err
			}

			var stage transfer.Stage
			var failed int
			for _, path := range args {
				src, err := transfer.NewFileSource(path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					failed++
					continue
				}
				progress := ui.NewProgress(cmd.ErrOrStderr(), src.Name)
				res, err := stage.Begin(ctx, c, src, opts, progress.Observe).Start()
				if errors.Is(err, transfer.ErrTransferAborted) {
					fmt.Fprintln(cmd.ErrOrStderr(), "upload cancelled")
					return nil
				}
				if err != nil {
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s)\n", src.Name, c.VideoURL(res.Filename), utils.FormatBytes(res.Size))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(args))
			}
			return nil
		},
	}
}

func listCmd(newClient func() (*client.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored videos, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			files, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILENAME\tORIGINAL\tSIZE\tUPLOADED")
			for _, f := range files {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Filename, f.OriginalName,
					utils.FormatBytes(f.Size), f.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func rmCmd(newClient func() (*client.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Delete a stored video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			if err := c.Delete(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, client.ErrNotFound) {
					return fmt.Errorf("%s: not found", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func watchCmd(newClient func() (*client.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print library changes as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return c.Watch(ctx, func(ev models.Event) {
				if ev.Payload == nil {
					return
				}
				switch ev.Type {
				case models.EventFileAdded:
					fmt.Fprintf(cmd.OutOrStdout(), "+ %s (%s)\n", ev.Payload.Filename, utils.FormatBytes(ev.Payload.Size))
				case models.EventFileDeleted:
					fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", ev.Payload.Filename)
				}
			})
		},
	}
}
