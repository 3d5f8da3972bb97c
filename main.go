package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bryan-buckman/photofeed/internal/clock"
	"github.com/bryan-buckman/photofeed/internal/config"
	"github.com/bryan-buckman/photofeed/internal/database"
	"github.com/bryan-buckman/photofeed/internal/janitor"
	"github.com/bryan-buckman/photofeed/internal/model"
	"github.com/bryan-buckman/photofeed/internal/photofeed"
	"github.com/bryan-buckman/photofeed/internal/remote"
	"github.com/bryan-buckman/photofeed/internal/server"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	cfg := config.Load()
	logger := log.NewFilter(
		log.With(log.NewStdLogger(os.Stdout), "ts", log.DefaultTimestamp),
		log.FilterLevel(cfg.LogLevel),
	)

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "--help", "-h", "help":
		printHelp()
		return
	case "serve":
		err = cmdServe(cfg, logger)
	case "sync":
		err = cmdSync(cfg, logger, args)
	case "cleanup":
		err = cmdCleanup(cfg, logger, args)
	case "set-janitor-interval":
		err = cmdSetJanitorInterval(cfg, args)
	case "invalidate":
		err = cmdInvalidate(cfg, logger, args)
	default:
		fmt.Printf("unknown command: %s\n\n", cmd)
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.NewHelper(logger).Errorf("%s: %v", cmd, err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Print(`Usage:
  photofeed COMMAND [OPTIONS]

Commands:
   serve                   serve the photo feeds API from the database
   sync                    page through a feed from the remote, caching locally
   cleanup                 delete expired cache rows now
   set-janitor-interval    set how often the cache janitor runs, in minutes
   invalidate              remove a taken-down photo from every cache
`)
}

func openStore(cfg config.Config) (database.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return database.New(cfg.DBDSN)
	case "postgres":
		return database.NewPostgres(cfg.DBDSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

func newService(cfg config.Config, store database.Store, logger log.Logger) (*photofeed.Service, error) {
	client, err := remote.NewClient(cfg.RemoteURL, nil, logger)
	if err != nil {
		return nil, err
	}
	return photofeed.New(store, client, photofeed.Options{
		ProbeInterval: cfg.ProbeInterval,
		Lifetimes:     cfg.CacheLifetimes,
	}, clock.System{}, logger), nil
}

func newJanitor(svc *photofeed.Service, store database.Store, logger log.Logger) *janitor.Janitor {
	caches := make([]janitor.Cache, 0, len(model.FeedTypes))
	for _, c := range svc.Caches() {
		caches = append(caches, c)
	}
	return janitor.New(caches, store, logger)
}

func cmdServe(cfg config.Config, logger log.Logger) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return server.New(store, clock.System{}, logger).Start(cfg.ListenAddr)
}

func cmdSync(cfg config.Config, logger log.Logger, args []string) error {
	fset := flag.NewFlagSet("sync", flag.ContinueOnError)
	feedName := fset.String("feed", string(model.FeedGallery), "feed: uploaded, received or gallery")
	pages := fset.Int("pages", 1, "number of pages to load (0 = until the end of the feed)")
	pageSize := fset.Int("page-size", cfg.PageSize, fmt.Sprintf("photos per page (1-%d)", remote.MaxPageSize))
	owner := fset.String("owner", "", "owner id for uploaded and received feeds")
	refresh := fset.Bool("refresh", false, "load the first page with a forced freshness check")
	if err := fset.Parse(args); err != nil {
		return err
	}
	feed, err := model.ParseFeedType(*feedName)
	if err != nil {
		return err
	}
	ownerID := cfg.Owner
	if *owner != "" {
		if ownerID, err = uuid.Parse(*owner); err != nil {
			return fmt.Errorf("invalid --owner: %w", err)
		}
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	svc, err := newService(cfg, store, logger)
	if err != nil {
		return err
	}
	ctrl, err := svc.Controller(feed, ownerID, *pageSize)
	if err != nil {
		return err
	}

	j := newJanitor(svc, store, logger)
	j.Start()
	defer j.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	load := ctrl.LoadMore
	if *refresh {
		load = ctrl.Refresh
	}
	for i := 0; *pages == 0 || i < *pages; i++ {
		_, end, err := load(ctx)
		if err != nil {
			return err
		}
		load = ctrl.LoadMore
		if end {
			break
		}
	}

	fmt.Printf("# %s feed (%d photos)\n\n", feed, ctrl.Len())
	for i, p := range ctrl.Items() {
		fmt.Printf("%d. %s (%s)\n   %s\n", i+1, p.Name, p.Age, p.URL)
	}
	if ctrl.EndOfFeed() {
		fmt.Println("\n-- end of feed --")
	}
	return nil
}

func cmdCleanup(cfg config.Config, logger log.Logger, args []string) error {
	fset := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	all := fset.Bool("all", false, "drop every cached row, not only expired ones")
	if err := fset.Parse(args); err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	svc, err := newService(cfg, store, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if *all {
		for _, c := range svc.Caches() {
			n, err := c.DeleteAll(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s: cleared %d rows\n", c.Feed(), n)
		}
		return nil
	}
	results := newJanitor(svc, store, logger).Sweep(ctx)
	for _, feed := range model.FeedTypes {
		if n, ok := results[feed]; ok {
			fmt.Printf("%s: deleted %d expired rows\n", feed, n)
		}
	}
	return nil
}

func cmdSetJanitorInterval(cfg config.Config, args []string) error {
	fset := flag.NewFlagSet("set-janitor-interval", flag.ContinueOnError)
	minutes := fset.Int("minutes", 0, "janitor interval in minutes")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *minutes < database.MinJanitorIntervalMinutes {
		return fmt.Errorf("usage: photofeed set-janitor-interval --minutes N (N >= %d)", database.MinJanitorIntervalMinutes)
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	old, err := store.GetJanitorInterval()
	if err != nil {
		return err
	}
	if err := store.SetSetting(model.SettingJanitorInterval, strconv.Itoa(*minutes)); err != nil {
		return err
	}
	fmt.Printf("Janitor interval changed from %dm to %dm\n", old, *minutes)
	return nil
}

func cmdInvalidate(cfg config.Config, logger log.Logger, args []string) error {
	fset := flag.NewFlagSet("invalidate", flag.ContinueOnError)
	name := fset.String("name", "", "photo file name")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*name) == "" {
		return fmt.Errorf("--name is required")
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	svc, err := newService(cfg, store, logger)
	if err != nil {
		return err
	}

	hit, err := svc.Invalidate(context.Background(), *name)
	if err != nil {
		return err
	}
	if len(hit) == 0 {
		fmt.Printf("%s was not cached\n", *name)
		return nil
	}
	fmt.Printf("Removed %s from %v\n", *name, hit)
	return nil
}
