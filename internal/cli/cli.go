// Package cli は listingctl のコマンド定義です。
//
//	listingctl push     --context tab-1 --file listing.yaml
//	listingctl generate --context tab-1 --kind video [--file listing.yaml] [--wait] [--out dir]
//	listingctl watch    --context tab-1
//	listingctl status   <jobId>
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/client"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/listing"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/logger"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/poller"
)

const defaultAPIURL = "http://127.0.0.1:8080"

type rootOptions struct {
	apiURL   string
	logLevel string
	timeout  time.Duration
}

// NewRootCommand はルートコマンドを組み立てます。
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "listingctl",
		Short:         "Generate listing images, story videos and flyers through the job API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logger.Init("listingctl", opts.logLevel)
		},
	}

	apiURL := os.Getenv("LISTING_API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	root.PersistentFlags().StringVar(&opts.apiURL, "api", apiURL, "job API base URL")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "HTTP request timeout")

	root.AddCommand(
		newPushCommand(opts),
		newGenerateCommand(opts),
		newWatchCommand(opts),
		newStatusCommand(opts),
	)
	return root
}

// Execute はコマンドを実行します。
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (o *rootOptions) client() (*client.Client, error) {
	return client.New(o.apiURL, newHTTPClient(o.timeout))
}

func (o *rootOptions) poller(c *client.Client, interval time.Duration) *poller.Poller {
	return poller.New(c, interval)
}

// loadListing は YAML または JSON の物件データを読み込みます。JSON は YAML として解釈できます。
func loadListing(path string) (listing.Listing, error) {
	var l listing.Listing
	data, err := os.ReadFile(path)
	if err != nil {
		return l, fmt.Errorf("failed to read listing file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", "":
	default:
		return l, fmt.Errorf("unsupported listing file %q (want .yaml, .yml or .json)", path)
	}
	if err := yaml.Unmarshal(data, &l); err != nil {
		return l, fmt.Errorf("invalid listing file: %w", err)
	}
	return l, nil
}
