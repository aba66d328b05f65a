package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "photo-moments",
	Short: "Group a PhotoPrism library into moments by time and place",
	Long: `Photo Moments reads the media index of a PhotoPrism instance, groups photos
and videos into moments (bursts of captures close in time and place), titles
them with a place name and saves them as albums. An optional prompt such as
"dogs in the mountains" narrows the library with an image labeler first.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON instead of console text")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
	setupLogging(logLevel, logJSON)
}

// setupLogging configures the global zerolog logger. Logs go to stderr so
// command output on stdout stays machine readable.
func setupLogging(level string, jsonOutput bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if jsonOutput {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
}
