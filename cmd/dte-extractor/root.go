package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/puddly/dte-insight-extractor/internal/config"
	"github.com/puddly/dte-insight-extractor/pkg/client"
	"github.com/puddly/dte-insight-extractor/pkg/logging"
	"github.com/puddly/dte-insight-extractor/pkg/session"
)

var (
	cfgFile    string
	baseURL    string
	pacing     int
	maxRetries int
	debugLog   bool
	prettyLog  bool
)

var rootCmd = &cobra.Command{
	Use:   "dte-extractor",
	Short: "Extract historical usage readings from DTE Insight",
	Long: `dte-extractor downloads the complete historical usage-reading dataset
for every metered site on a DTE Insight account. The upstream API has no
bulk export, so the tool binary-searches for each site's first day of
data and then pages through every reading from there.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelInfo
		if debugLog {
			level = logging.LevelDebug
		}
		logging.Setup(logging.Config{Level: level, Pretty: prettyLog})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "API base URL (default is production)")
	rootCmd.PersistentFlags().IntVar(&pacing, "pacing", 0, "seconds to wait before every request (default 2)")
	rootCmd.PersistentFlags().IntVar(&maxRetries, "max-retries", 0, "502 retries per request (default 10)")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&prettyLog, "pretty-log", false, "human-readable log output")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	return config.Load(getConfigPath())
}

// newClient builds the API client from flags and config.
func newClient(cfg *config.Config) *client.Client {
	clientCfg := client.Config{BaseURL: baseURL}
	if clientCfg.BaseURL == "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	if pacing > 0 {
		clientCfg.PacingDelay = time.Duration(pacing) * time.Second
	} else if cfg.PacingSeconds > 0 {
		clientCfg.PacingDelay = time.Duration(cfg.PacingSeconds) * time.Second
	}

	if maxRetries > 0 {
		clientCfg.MaxRetries = maxRetries
	} else if cfg.MaxRetries > 0 {
		clientCfg.MaxRetries = cfg.MaxRetries
	}

	return client.New(clientCfg)
}

// resolveCredentials takes credentials from the config file, falling back
// to interactive prompting.
func resolveCredentials(cfg *config.Config) (session.Credentials, error) {
	creds := session.Credentials{
		Username: cfg.Username,
		Password: cfg.Password,
	}

	if creds.Username == "" {
		fmt.Fprint(os.Stderr, "Enter your username: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return session.Credentials{}, fmt.Errorf("reading username: %w", err)
		}
		creds.Username = strings.TrimSpace(line)
	}

	if creds.Password == "" {
		fmt.Fprint(os.Stderr, "Enter your account password: ")
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return session.Credentials{}, fmt.Errorf("reading password: %w", err)
		}
		creds.Password = string(secret)
	}

	return creds, nil
}

// login loads config, resolves credentials, and opens a session.
func login(ctx context.Context) (*session.Session, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	creds, err := resolveCredentials(cfg)
	if err != nil {
		return nil, nil, err
	}

	sess, err := session.Login(ctx, newClient(cfg), creds, logging.NewLogger("session"))
	if err != nil {
		return nil, nil, fmt.Errorf("logging in: %w", err)
	}

	return sess, cfg, nil
}
