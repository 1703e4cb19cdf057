package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/sshcollectorpro/junosconnect/api/handler"
	"github.com/sshcollectorpro/junosconnect/api/router"
	"github.com/sshcollectorpro/junosconnect/internal/database"
	"github.com/sshcollectorpro/junosconnect/pkg/logger"
	"github.com/sshcollectorpro/junosconnect/simulate"
	"gorm.io/gorm"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulated Junos device for tests and demos",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a simulated Junos device over SSH",
	Long: `Start an SSH server that answers like a Junos CLI from a fixture table.

Fixtures come from the built-in vSRX table, overlaid with the sim_commands
table when database.enabled is true, or replaced by --fixtures (YAML, reloaded
on change). With --admin the fixture table can be edited over HTTP:

  GET    /api/v1/sim-commands
  POST   /api/v1/sim-commands
  PUT    /api/v1/sim-commands/:id
  DELETE /api/v1/sim-commands/:id
  GET    /api/v1/health

Examples:
  junos simulate serve --listen 127.0.0.1:2222
  junos simulate serve --fixtures fixtures.yaml
  junos simulate serve --admin 127.0.0.1:8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var seedDB bool

func init() {
	serveCmd.Flags().String("listen", "", "SSH listen address (default: simulate.listen)")
	serveCmd.Flags().String("fixtures", "", "YAML fixture file, reloaded on change")
	serveCmd.Flags().String("admin", "", "Fixture admin API listen address, implies the database")
	serveCmd.Flags().BoolVar(&seedDB, "seed", false, "Write the built-in fixtures into sim_commands before serving")
	simulateCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	sc := cfg.Simulate

	var db *gorm.DB
	if cfg.Database.Enabled || sc.AdminListen != "" {
		if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
			return err
		}
		defer database.Close()
		db = database.GetDB()
		if seedDB {
			n, err := simulate.SeedDB(db, simulate.Platform, simulate.DefaultTable())
			if err != nil {
				return err
			}
			logger.Infof("seeded %d fixtures", n)
		}
	}

	table, err := initialTable(sc.FixtureFile, db)
	if err != nil {
		return err
	}
	srv, err := simulate.NewServer(simulate.ServerConfig{
		Addr:            sc.Listen,
		Hostname:        sc.Hostname,
		Users:           sc.Users,
		HostKeyPath:     sc.HostKeyPath,
		IdleTimeout:     sc.IdleTimeout,
		MaxConn:         sc.MaxConn,
		AllowForwarding: sc.Forwarding,
	}, table)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()
	logger.Infof("simulated device %s ready on %s (%d fixtures)", sc.Hostname, srv.Addr(), table.Len())

	if sc.FixtureFile != "" {
		go func() {
			if err := simulate.WatchTableFile(ctx, sc.FixtureFile, srv.SetTable); err != nil {
				logger.Warnf("fixture watch stopped: %v", err)
			}
		}()
	}

	if sc.AdminListen != "" {
		gin.SetMode(sc.GinMode)
		r := router.SetupRouter(
			handler.NewSimCmdHandler(db, srv),
			handler.NewHealthHandler(db, func() int { return srv.Table().Len() }),
		)
		httpSrv := &http.Server{
			Addr:              sc.AdminListen,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20,
		}
		go func() {
			logger.Infof("fixture admin API listening on %s", sc.AdminListen)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("admin API failed: %v", err)
				cancel()
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down simulated device")
	return nil
}

// initialTable 应答文件优先，其次数据库，最后内置表
func initialTable(fixtureFile string, db *gorm.DB) (*simulate.Table, error) {
	switch {
	case fixtureFile != "":
		return simulate.LoadTableFile(fixtureFile)
	case db != nil:
		return simulate.LoadTableFromDB(db, simulate.Platform)
	default:
		return simulate.DefaultTable(), nil
	}
}
