package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "electronic_load/docs"
	"electronic_load/internal/config"
	"electronic_load/internal/device"
	"electronic_load/internal/handlers"
	"electronic_load/internal/logger"
	"electronic_load/internal/repository"
	"electronic_load/internal/repository/db"
	"electronic_load/internal/server"
	"electronic_load/internal/service"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const shutdownTimeout = 10 * time.Second

// @title                       Electronic Load API
// @version                     1.0
// @description                 Acquisition, integration and control of a programmable DC electronic load.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "eload",
		Short:         "Electronic load acquisition and control service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultPath, "settings file (created with defaults when missing)")

	root.AddCommand(newServeCmd(&cfgPath), newConfigCmd(&cfgPath))
	return root
}

func newServeCmd(cfgPath *string) *cobra.Command {
	var (
		port     string
		simulate bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the acquisition engine and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if simulate && !store.Settings().Device.Simulate {
				if _, err := store.Update(func(s *config.Settings) { s.Device.Simulate = true }); err != nil {
					return err
				}
			}
			if port == "" {
				port = store.Settings().HTTP.Port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, store, port)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "HTTP port (overrides http.port)")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "switch device.simulate on in the settings file and use the built-in simulated load")
	return cmd
}

func serve(ctx context.Context, store *config.Store, port string) error {
	st := store.Settings()
	log := logger.Get(logger.LevelFor(st.Log.Debug))
	defer func() { _ = log.Sync() }()

	if store.Created() {
		log.Infow("config_created", "path", store.Path())
	}

	conn, err := db.InitDB(st.DB.Path)
	if err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("db_close_failed", "err", cerr)
		}
	}()

	repos := repository.NewRepository(conn)
	services := service.NewService(repos, store, newOpener(store, log), log)
	apiHandler := handlers.NewHandler(services, log)

	engineCtx, cancelEngine := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		services.Run(engineCtx)
	}()

	srv := server.New()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(port, apiHandler.InitRoutes()) }()
	log.Infow("http_listening", "port", port)

	select {
	case <-ctx.Done():
		log.Infow("shutting_down")
	case err = <-errCh:
		if err != nil {
			log.Errorw("http_server_failed", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Errorw("http_shutdown_failed", "err", serr)
	}
	// the exit safety policy needs the device, so it runs before the
	// polling loop and recorder stop
	if serr := services.Shutdown(shutdownCtx); serr != nil {
		log.Errorw("device_shutdown_failed", "err", serr)
	}
	cancelEngine()
	wg.Wait()
	return err
}

// newOpener picks the simulator or the serial transport at connect time, so
// a settings change applies to the next connect.
func newOpener(store *config.Store, log *logger.Logger) device.Opener {
	return device.OpenerFunc(func(port string) (device.Device, error) {
		st := store.Settings()
		if st.Device.Simulate {
			return device.NewSimulator(time.Now), nil
		}
		d, err := device.OpenSerial(device.SerialConfig{
			Port:     port,
			BaudRate: st.Device.BaudRate,
			Timeout:  st.DeviceTimeout(),
			Debug:    log.DebugEnabled(),
		}, log)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

func newConfigCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the settings file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Write the settings file with defaults if it does not exist",
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := config.Load(*cfgPath)
				if err != nil {
					return err
				}
				if store.Created() {
					fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", store.Path())
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", store.Path())
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective settings",
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := config.Load(*cfgPath)
				if err != nil {
					return err
				}
				all := store.AllSettings()
				if auth, ok := all["auth"].(map[string]any); ok {
					auth["signing_key"] = "***"
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(all)
			},
		},
	)
	return cmd
}
