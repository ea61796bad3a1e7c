package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"biliticket/possync/internal/apiclient"
	"biliticket/possync/internal/model"
	"biliticket/possync/internal/remotesim"
)

type SimulateOptions struct {
	*RootOptions
	Addr      string
	AccessTTL time.Duration
	TaxRate   float64
}

// demoProducts seeds the simulated inventory.
var demoProducts = []model.Product{
	{ProductID: "sku-espresso", SKU: "ESP-01", Name: "Espresso", Category: "drinks", Price: 2.5, Stock: 200},
	{ProductID: "sku-latte", SKU: "LAT-01", Name: "Latte", Category: "drinks", Price: 3.8, Stock: 150},
	{ProductID: "sku-croissant", SKU: "CRO-01", Name: "Croissant", Category: "bakery", Price: 2.2, Stock: 40},
	{ProductID: "sku-bagel", SKU: "BAG-01", Name: "Sesame bagel", Category: "bakery", Price: 2.0, Stock: 30},
}

func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an in-memory retail server for demos",
		Long: `Run a stand-in retail server with demo inventory and two accounts:
cashier/1234 (role cashier) and manager/4321 (role manager). Point
remote.base_url at it and stop it to watch the till fall back to offline.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			sim := remotesim.New(remotesim.Options{
				AccessTTL: opts.AccessTTL,
				TaxRate:   opts.TaxRate,
				Logger:    logger.Named("remotesim"),
			})
			sim.AddUser("cashier", "1234", apiclient.User{Name: "Demo cashier", Role: "cashier"})
			sim.AddUser("manager", "4321", apiclient.User{Name: "Demo manager", Role: "manager"})
			sim.SetProducts(demoProducts...)

			srv := &http.Server{Addr: opts.Addr, Handler: sim.Handler()}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			logger.Info("simulated retail server listening", zap.String("addr", opts.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().DurationVar(&opts.AccessTTL, "access-ttl", 15*time.Minute, "access token lifetime; shorten to exercise refresh")
	cmd.Flags().Float64Var(&opts.TaxRate, "tax-rate", 0, "tax rate applied to order subtotals")
	return cmd
}
