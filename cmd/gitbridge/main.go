package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/docforge/gitbridge/internal/bridge"
	"github.com/docforge/gitbridge/internal/config"
	"github.com/docforge/gitbridge/internal/httpapi"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "gitbridge",
		Short:         "Synchronization bridge between git clients and the document platform",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to TOML config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	checkConfig := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: listen=%s journal=%s\n",
				cfg.Server.ListenAddr, cfg.Journal.DSN)
			return nil
		},
	}

	root.AddCommand(serve, checkConfig)
	return root
}

func runServe(cfg config.Config) error {
	docStore, err := bridge.NewDocStoreClient(bridge.DocStoreClientOptions{
		BaseURL:   cfg.DocStore.BaseURL,
		AuthToken: cfg.DocStore.AuthToken,
	})
	if err != nil {
		return err
	}
	history := bridge.NewHTTPHistoryClient(bridge.HistoryClientOptions{
		BaseURL: cfg.History.BaseURL,
	})

	journal, err := bridge.BuildJournalFromDSN(cfg.Journal.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := journal.Close(); closeErr != nil {
			log.Printf("journal close failed: err=%v", closeErr)
		}
	}()

	downloader, err := bridge.NewDownloader(bridge.DownloaderOptions{
		Filesystem: osfs.New("."),
		DumpDir:    cfg.Push.DumpDir,
	})
	if err != nil {
		return err
	}
	reconciler, err := bridge.NewReconciler(docStore, history, downloader)
	if err != nil {
		return err
	}
	orchestrator, err := bridge.NewOrchestrator(bridge.OrchestratorOptions{
		Store:       docStore,
		History:     history,
		Reconciler:  reconciler,
		Journal:     journal,
		PushTimeout: cfg.Push.Timeout.Duration,
	})
	if err != nil {
		return err
	}
	snapshots, err := bridge.NewSnapshotReader(bridge.SnapshotReaderOptions{
		Store:       docStore,
		History:     history,
		Users:       docStore,
		BlobBaseURL: cfg.Blob.BaseURL,
		TokenSecret: cfg.Blob.TokenSecret,
		TokenTTL:    cfg.Blob.TokenTTL.Duration,
	})
	if err != nil {
		return err
	}

	handler := httpapi.NewServer(snapshots, orchestrator, httpapi.ServerConfig{
		JWTSecret:          cfg.Server.JWTSecret,
		InternalHMACSecret: cfg.Server.InternalHMACSecret,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
	})

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("gitbridge listening: addr=%s journal=%s", cfg.Server.ListenAddr, cfg.Journal.DSN)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Printf("shutting down: signal=%s", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown failed: err=%v", err)
	}

	// Let in-flight pushes reach a terminal state and deliver their postbacks.
	orchestrator.Wait()
	return nil
}
