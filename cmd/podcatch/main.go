package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/mmcdole/podcatch/internal/config"
	"github.com/mmcdole/podcatch/internal/domain"
	"github.com/mmcdole/podcatch/internal/events"
	"github.com/mmcdole/podcatch/internal/feed"
	"github.com/mmcdole/podcatch/internal/log"
	"github.com/mmcdole/podcatch/internal/service"
	"github.com/mmcdole/podcatch/internal/storage"
	"github.com/mmcdole/podcatch/internal/storage/bolt"
	"github.com/mmcdole/podcatch/internal/storage/memory"
	"github.com/mmcdole/podcatch/internal/storage/sqlite"
	"github.com/mmcdole/podcatch/internal/web"
)

// Version is set at build time via -ldflags
var Version = "dev"

const usage = `podcatch - offline podcast client

Usage:
  podcatch add <feed-url>            subscribe to a feed
  podcatch refresh [feed-url]        refresh one feed, or all
  podcatch remove <feed-url>         unsubscribe (episodes are kept)
  podcatch sources                   list subscriptions
  podcatch episodes                  list all episodes
  podcatch playlist                  list unplayed episodes
  podcatch search <query>            fuzzy-search episodes
  podcatch download <episode-uri>    save an episode's media offline
  podcatch play <episode-uri>        open an episode for playback
  podcatch position <uri> <seconds>  record the playback position
  podcatch toggle <episode-uri>      toggle the played flag
  podcatch mark-all-played           flag every episode as played
  podcatch delete <episode-uri>      drop an episode's offline media
`

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if showVersion {
		fmt.Printf("podcatch %s\n", Version)
		return
	}

	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return errors.New("no command given")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)
	logger.Info("starting podcatch", "version", Version, "command", args[0])

	ctx := context.Background()

	registry := storage.NewRegistry(logger)
	if err := registerBackends(ctx, registry, cfg, logger); err != nil {
		return err
	}
	defer registry.Close()

	notifier := events.NewNotifier(logger)
	notifier.Subscribe(events.WriteEpisode, func(payload any) {
		if episode, ok := payload.(*domain.Episode); ok {
			logger.Debug("episode changed", "uri", episode.URI)
		}
	})

	records := storage.NewRecordStore(registry, notifier, logger)
	blobs := storage.NewBlobStore(registry, records, logger)
	settings := storage.NewSettings(registry)

	proxy, err := settings.Get(ctx, storage.SettingProxyURLPattern, cfg.Web.ProxyURLPattern)
	if err != nil {
		return err
	}
	client := web.NewClient(proxy, logger)

	library := service.NewLibraryService(records, client, feed.NewParser(), logger)
	playback := service.NewPlaybackService(records, blobs, settings, logger)
	downloads := service.NewDownloadService(client, blobs, logger)
	search := service.NewSearchService(records, logger)

	switch cmd, rest := args[0], args[1:]; cmd {
	case "add":
		return runAdd(ctx, library, rest)
	case "refresh":
		return runRefresh(ctx, library, rest)
	case "remove":
		return requireArg(rest, "feed-url", func(uri string) error {
			return library.RemoveSource(ctx, uri)
		})
	case "sources":
		return runSources(ctx, library)
	case "episodes":
		return listEpisodes(library.Episodes(ctx))
	case "playlist":
		return listEpisodes(library.Playlist(ctx))
	case "search":
		return requireArg(rest, "query", func(query string) error {
			return listEpisodes(search.Search(ctx, query))
		})
	case "download":
		return runDownload(ctx, records, downloads, rest)
	case "play":
		return runPlay(ctx, records, playback, rest)
	case "position":
		return runPosition(ctx, records, playback, rest)
	case "toggle":
		return requireArg(rest, "episode-uri", func(uri string) error {
			episode, err := records.GetEpisode(ctx, uri)
			if err != nil {
				return err
			}
			_, err = playback.TogglePlayed(ctx, episode)
			return err
		})
	case "mark-all-played":
		return playback.MarkAllPlayed(ctx)
	case "delete":
		return requireArg(rest, "episode-uri", func(uri string) error {
			episode, err := records.GetEpisode(ctx, uri)
			if err != nil {
				return err
			}
			_, err = downloads.Delete(ctx, episode)
			return err
		})
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// registerBackends fills the registry and opens backends in priority order
// until one is usable. An open blocked by another connection is fatal:
// retrying cannot resolve it, only closing the other connection can.
func registerBackends(ctx context.Context, registry *storage.Registry, cfg *config.Config, logger *slog.Logger) error {
	candidates := []struct {
		backend  domain.Backend
		priority int
	}{
		{bolt.New(cfg.Storage.DataDir, logger), 100},
		{sqlite.New(cfg.Storage.DataDir, logger), 50},
		{memory.New(), 10},
	}

	for _, c := range candidates {
		if cfg.Storage.Backend != "" && cfg.Storage.Backend != c.backend.Name() {
			continue
		}
		registry.Register(c.backend, c.priority)
	}

	var opened bool
	for _, c := range candidates {
		if !c.backend.Compatible() {
			continue
		}
		if cfg.Storage.Backend != "" && cfg.Storage.Backend != c.backend.Name() {
			continue
		}
		err := c.backend.Open(ctx)
		if err == nil {
			opened = true
			break
		}
		if errors.Is(err, domain.ErrBlocked) || errors.Is(err, domain.ErrMigration) {
			return err
		}
		logger.Warn("backend failed to open, trying next",
			"backend", c.backend.Name(), "error", err)
	}

	if !opened {
		return domain.ErrNoBackend
	}
	return nil
}

func requireArg(args []string, name string, fn func(string) error) error {
	if len(args) < 1 {
		return fmt.Errorf("missing argument: %s", name)
	}
	return fn(args[0])
}

func runAdd(ctx context.Context, library *service.LibraryService, args []string) error {
	return requireArg(args, "feed-url", func(url string) error {
		source, err := library.Subscribe(ctx, url)
		if err != nil {
			return err
		}
		fmt.Printf("subscribed to %s (%s)\n", source.Title, source.URI)
		return nil
	})
}

func runRefresh(ctx context.Context, library *service.LibraryService, args []string) error {
	if len(args) == 0 {
		return library.RefreshAll(ctx)
	}
	return library.Refresh(ctx, &domain.Source{URI: args[0]})
}

func runSources(ctx context.Context, library *service.LibraryService) error {
	sources, err := library.Sources(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, source := range sources {
		fmt.Fprintf(w, "%s\t%s\n", source.Title, source.URI)
	}
	return w.Flush()
}

func listEpisodes(episodes []*domain.Episode, err error) error {
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, episode := range episodes {
		status := " "
		if episode.Playback.Played {
			status = "x"
		}
		offline := " "
		if episode.IsFileSavedOffline {
			offline = "*"
		}
		fmt.Fprintf(w, "[%s]%s\t%s\t%s\t%s\n",
			status, offline, episode.Updated.Format("2006-01-02"), episode.Title, episode.URI)
	}
	return w.Flush()
}

func runDownload(ctx context.Context, records *storage.RecordStore, downloads *service.DownloadService, args []string) error {
	return requireArg(args, "episode-uri", func(uri string) error {
		episode, err := records.GetEpisode(ctx, uri)
		if err != nil {
			return err
		}
		episode, err = downloads.Download(ctx, episode, func(loaded, total int64) {
			if total > 0 {
				fmt.Fprintf(os.Stderr, "\r%3d%%", loaded*100/total)
			}
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "\rsaved %s offline\n", episode.Title)
		return nil
	})
}

func runPlay(ctx context.Context, records *storage.RecordStore, playback *service.PlaybackService, args []string) error {
	return requireArg(args, "episode-uri", func(uri string) error {
		episode, err := records.GetEpisode(ctx, uri)
		if err != nil {
			return err
		}
		episode, err = playback.Open(ctx, episode)
		if err != nil {
			return err
		}
		if episode.OfflineMediaURL != "" {
			fmt.Println(episode.OfflineMediaURL)
		} else {
			fmt.Println(episode.MediaURL)
		}
		return nil
	})
}

func runPosition(ctx context.Context, records *storage.RecordStore, playback *service.PlaybackService, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: position <episode-uri> <seconds>")
	}
	seconds, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid seconds %q: %w", args[1], err)
	}
	episode, err := records.GetEpisode(ctx, args[0])
	if err != nil {
		return err
	}
	_, err = playback.SavePosition(ctx, episode, seconds)
	return err
}
