// Command simulator boots the Velocity trading core standalone: it loads
// configuration, wires structured logging to every subscriber callback,
// starts the matching engine, and shuts down gracefully on SIGINT/SIGTERM.
// No REST API or database wiring here; the core exposes a programmatic
// interface only.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ab0626/velocity"
	"github.com/ab0626/velocity/internal/config"
	"github.com/ab0626/velocity/internal/matching"
	"github.com/ab0626/velocity/internal/ordermanager"
	"github.com/ab0626/velocity/internal/orderbook"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		logrus.WithError(err).Fatal("simulator: failed to load configuration")
	}

	log := newLogger(cfg.Logging)

	sim := velocity.New(cfg, log)

	sim.OrderManager().SetExecutionCallback(func(exec matching.Execution) {
		log.WithFields(logrus.Fields{
			"execution_id": exec.ExecutionID,
			"order_id":     exec.OrderID,
			"symbol":       exec.Symbol,
			"side":         exec.Side,
			"price":        exec.Price,
			"quantity":     exec.Quantity,
			"trader_id":    exec.TraderID,
		}).Info("execution")
	})
	sim.OrderManager().SetPositionCallback(func(pos ordermanager.Position) {
		log.WithFields(logrus.Fields{
			"symbol":       pos.Symbol,
			"quantity":     pos.Quantity,
			"avg_price":    pos.AvgPrice,
			"realized_pnl": pos.RealizedPnL,
		}).Debug("position update")
	})
	sim.OrderManager().SetRiskAlertCallback(func(reason string) {
		log.WithField("reason", reason).Warn("risk alert")
	})
	sim.OrderManager().SetOrderStatusCallback(func(o orderbook.Order) {
		log.WithFields(logrus.Fields{
			"order_id": o.ID,
			"status":   o.Status,
			"symbol":   o.Symbol,
		}).Debug("order status")
	})

	sim.Start()
	log.WithField("symbols", cfg.Engine.Symbols).Info("simulator: matching engine started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.WithField("signal", sig).Info("simulator: received signal, shutting down")

	sim.Stop()
	log.Info("simulator: gracefully shutdown")
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
