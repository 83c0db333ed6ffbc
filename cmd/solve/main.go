// Command solve plans one instance read from CSV files and writes the
// assignments next to it.
//
//	solve -path ./data -iterations 5000 -out ./data/assignments.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"pdptw/internal/buildinfo"
	"pdptw/internal/config"
	"pdptw/internal/integrations"
	"pdptw/internal/integrations/csvfile"
	"pdptw/internal/opt"
)

func main() {
	if err := run(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run() error {
	var (
		path       = flag.String("path", ".", "directory holding the input files")
		driverFile = flag.String("driver-file-name", csvfile.DefaultDriverFile, "driver file name")
		orderFile  = flag.String("order-file-name", csvfile.DefaultOrderFile, "order file name")
		out        = flag.String("out", "", "assignment file (default <path>/assignments.csv)")
		cfgPath    = flag.String("config", "", "optimizer config yaml")
		seed       = flag.Int64("seed", 0, "random seed (0 picks one from the clock)")
		iterations = flag.Int("iterations", 0, "override the number of iterations")
		logLevel   = flag.String("log-level", "info", "log level")
		version    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()
	if *version {
		fmt.Println(buildinfo.Get())
		return nil
	}
	if err := (config.Service{LogLevel: *logLevel}).ConfigureLogging(); err != nil {
		return err
	}

	cfg := opt.DefaultConfig()
	if *cfgPath != "" {
		var err error
		if cfg, err = opt.LoadConfig(*cfgPath); err != nil {
			return err
		}
	}
	if *iterations > 0 {
		cfg.NumIterations = *iterations
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	if *out == "" {
		*out = filepath.Join(*path, "assignments.csv")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	src := csvfile.Source{Dir: *path, DriverFile: *driverFile, OrderFile: *orderFile}
	inst, err := integrations.LoadInstance(ctx, src, cfg.InstanceOptions()...)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"drivers": len(inst.DriverIDs()), "orders": len(inst.OrderIDs()), "seed": *seed}).Info("instance loaded")

	sol, m, err := opt.Solve(ctx, inst, cfg, *seed)
	if err != nil {
		return err
	}
	sink := csvfile.Sink{Path: *out}
	if err := sink.WriteAssignments(ctx, sol.Assignments()); err != nil {
		return fmt.Errorf("%s: %w", sink.Name(), err)
	}

	sum := sol.Summary()
	fmt.Printf("orders:          %d\n", sum.Orders)
	fmt.Printf("drivers used:    %d\n", sum.DriversUsed)
	fmt.Printf("cost:            %.2f\n", sum.Cost)
	fmt.Printf("distance (km):   %.2f\n", sum.Distance)
	fmt.Printf("late deliveries: %d\n", sum.LateDeliveries)
	fmt.Printf("total delay (s): %.0f\n", sum.TotalDelay)
	fmt.Printf("iterations:      %d (best %d, improved %d, accepted %d)\n", m.Iterations, m.NewBest, m.Improved, m.Accepted)
	fmt.Printf("runtime:         %s\n", m.Duration.Round(time.Millisecond))
	fmt.Printf("assignments:     %s\n", *out)
	return nil
}
