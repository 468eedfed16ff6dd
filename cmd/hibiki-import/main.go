// Package main provides the hibiki-import CLI: a dry run of the catalog
// import pipeline that resolves Spotify URLs and free-text searches into
// placeholder track lists without touching a rendering node.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/hibiki-audio/hibiki/internal/config"
	"github.com/hibiki-audio/hibiki/internal/logger"
	"github.com/hibiki-audio/hibiki/node"
	"github.com/hibiki-audio/hibiki/spotify"
)

var (
	app        = kingpin.New("hibiki-import", "Resolve Spotify catalog URLs and searches into track lists")
	configPath = app.Flag("config", "Path to config file").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	resolveCmd = app.Command("resolve", "Resolve a catalog URL (track/album/playlist/artist)")
	resolveURL = resolveCmd.Arg("url", "Spotify URL or URI").Required().String()

	searchCmd   = app.Command("search", "Run a free-text catalog search")
	searchQuery = searchCmd.Arg("query", "Search query").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(command, cfg); err != nil {
		zlog.Error().Msgf("Import error: %v", err)
		os.Exit(1)
	}
}

// run executes the selected command. Split out so defers fire before the
// error exit in main.
func run(command string, cfg *config.Config) error {
	sc, err := cfg.SpotifyConfig()
	if err != nil {
		return err
	}
	resolver := spotify.New(*sc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var result *node.LoadResult
	switch command {
	case resolveCmd.FullCommand():
		if !resolver.Check(*resolveURL) {
			return fmt.Errorf("not a spotify catalog url: %s", *resolveURL)
		}
		result, err = resolver.Resolve(ctx, *resolveURL)
	case searchCmd.FullCommand():
		result, err = resolver.Search(ctx, *searchQuery)
	}
	if err != nil {
		return err
	}

	printResult(result)
	return nil
}

func printResult(result *node.LoadResult) {
	fmt.Printf("load type: %s\n", result.LoadType)
	if result.PlaylistName != "" {
		fmt.Printf("name:      %s\n", result.PlaylistName)
	}
	if result.Exception != nil {
		fmt.Printf("exception: %s\n", result.Exception.Message)
	}

	var total time.Duration
	for i, t := range result.Tracks {
		fmt.Printf("%4d  %-40.40s  %-24.24s  %s\n", i+1, t.Title, t.Author, t.Length.Round(time.Second))
		total += t.Length
	}
	fmt.Printf("%d tracks, %s\n", len(result.Tracks), total.Round(time.Second))
}
