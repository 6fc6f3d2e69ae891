package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zoocal/internal/config"
	"zoocal/internal/dataset"
	appLog "zoocal/internal/log"
	"zoocal/internal/metrics"
	"zoocal/internal/model"
	"zoocal/internal/recur"
	"zoocal/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	from       string
	to         string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		appLog.Error("invalid log level; using info", err, "log_level", conf.LogLevel)
	}
	appLog.SetLevel(level)

	appLog.Info("zoocal starting", "version", "0.1.0")
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"events", conf.Events,
		"data_dir", conf.DataDir,
		"refresh", conf.RefreshCron,
		"max_instances_per_event", conf.MaxInstancesPerEvent,
		"max_window_days", conf.MaxWindowDays,
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.once {
		if err := runOnce(ctx, conf, flags, os.Stdout); err != nil {
			appLog.Error("one-shot expansion failed", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, conf); err != nil {
		appLog.Error("server stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("zoocal exiting")
}

// run loads the dataset, schedules reloads and serves HTTP until ctx ends.
func run(ctx context.Context, conf *config.Config) error {
	m := metrics.New("")
	provider := dataset.NewProvider(conf.Events, conf.CacheDir, conf.Location())
	store := dataset.NewStore(provider, dataset.WithReloadHook(m.ObserveReload))

	// A failed first load is not fatal: /events answers 503 until a
	// scheduled reload succeeds.
	if err := store.Reload(ctx); err != nil {
		appLog.Error("initial dataset load failed", err, "events", conf.Events)
	}
	if err := store.Start(conf.RefreshCron); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store.Stop(stopCtx)
	}()

	return web.NewServer(conf, store, m).Run(ctx)
}

// runOnce expands the dataset over -from/-to and prints the instances as
// JSON.
func runOnce(ctx context.Context, conf *config.Config, flags flagConfig, out io.Writer) error {
	loc := conf.Location()
	from, to, err := onceWindow(flags.from, flags.to, loc, time.Now())
	if err != nil {
		return err
	}

	// Loading through a Store applies the same validation as the server.
	store := dataset.NewStore(dataset.NewProvider(conf.Events, conf.CacheDir, loc))
	if err := store.Reload(ctx); err != nil {
		return err
	}
	defs, err := store.Definitions()
	if err != nil {
		return err
	}

	res, err := recur.ExpandOccurrences(defs, recur.ExpandConfig{
		From:                 from,
		To:                   to,
		MaxInstancesPerEvent: conf.MaxInstancesPerEvent,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Instances)
}

// onceWindow resolves the -from/-to flags; from defaults to now and to to
// from + 7 days.
func onceWindow(fromFlag, toFlag string, loc *time.Location, now time.Time) (time.Time, time.Time, error) {
	from := now.In(loc)
	if fromFlag != "" {
		t, err := model.ParseTimestamp(fromFlag, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("-from: %w", err)
		}
		from = t
	}
	to := from.AddDate(0, 0, 7)
	if toFlag != "" {
		t, err := model.ParseTimestamp(toFlag, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("-to: %w", err)
		}
		to = t
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, errors.New("-from is after -to")
	}
	return from, to, nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/zoocal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Expand the dataset over -from/-to, print JSON and exit")
	flag.StringVar(&cfg.from, "from", "", "Window start for -once (RFC3339, YYYY-MM-DD or epoch ms)")
	flag.StringVar(&cfg.to, "to", "", "Window end for -once (default: from + 7 days)")

	flag.Parse()

	return cfg
}
