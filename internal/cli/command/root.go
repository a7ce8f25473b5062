package command

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/twinisland/filebay/internal/cli/config"
	"github.com/twinisland/filebay/internal/cli/connection"
	"github.com/twinisland/filebay/internal/cli/output"
	"github.com/twinisland/filebay/internal/infra/buildinfo"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "filebay-cli",
		Usage:   "drop and fetch files on a filebay server",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			PutCommand(),
			GetCommand(),
			StatusCommand(),
			InfoCommand(),
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "filebay server address (e.g. http://127.0.0.1:8080)",
			EnvVars: []string{"FILEBAY_SERVER"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.Int64Flag{
			Name:  "chunk-size",
			Usage: "Upload chunk size in bytes",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "CLI config file",
			Value: config.DefaultPath(),
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Do not draw progress bars",
		},
	}
}

// Settings are the resolved global options: flags over config file over
// defaults.
type Settings struct {
	Server    string
	Output    output.Format
	ChunkSize int64
	Quiet     bool
}

// LoadSettings resolves the global options for a command.
func LoadSettings(c *cli.Context) (*Settings, error) {
	overrides := make(map[string]any)
	if c.IsSet("server") {
		overrides["server"] = c.String("server")
	}
	if c.IsSet("output") {
		overrides["output"] = c.String("output")
	}
	if c.IsSet("chunk-size") {
		n := c.Int64("chunk-size")
		if n <= 0 {
			return nil, fmt.Errorf("--chunk-size must be positive, got %d", n)
		}
		overrides["chunk_size"] = n
	}

	cfg, err := config.Load(c.String("config"), overrides)
	if err != nil {
		return nil, fmt.Errorf("load cli config: %w", err)
	}

	s := &Settings{
		Server:    cfg.Server,
		ChunkSize: cfg.ChunkSize,
		Quiet:     c.Bool("quiet"),
	}
	if s.Output, err = output.ParseFormat(cfg.Output); err != nil {
		return nil, err
	}
	return s, nil
}

// Client returns an HTTP client for the configured server.
func (s *Settings) Client() *connection.HTTPClient {
	return connection.NewHTTPClient(s.Server)
}

// Print writes data in the configured format.
func (s *Settings) Print(w io.Writer, data any) error {
	return output.NewFormatter(s.Output).Format(w, data)
}

// progress returns a bar on ErrWriter, or nil when quiet or when results
// are machine readable.
func (s *Settings) progress(c *cli.Context, title string, total int64) *output.ProgressBar {
	if s.Quiet || s.Output != output.FormatTable {
		return nil
	}
	return output.NewProgressBar(c.App.ErrWriter, title, total)
}
