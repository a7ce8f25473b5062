package command

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/twinisland/filebay/internal/cli/connection"
	"github.com/twinisland/filebay/internal/cli/output"
)

// StatusCommand shows whether the server is accepting uploads.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show whether the server is accepting uploads",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Follow busy/idle changes over a websocket",
			},
		},
		Action: showStatus,
	}
}

// InfoCommand shows the server's upload limits.
func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:   "info",
		Usage:  "Show server version and upload limits",
		Action: showInfo,
	}
}

type statusEvent struct {
	Time time.Time `json:"time"`
	Busy bool      `json:"busy"`
}

func showStatus(c *cli.Context) error {
	s, err := LoadSettings(c)
	if err != nil {
		return err
	}
	if c.Bool("watch") {
		return watchStatus(c, s)
	}

	var st statusResponse
	if err := getJSON(c.Context, s.Client(), "/api/status", &st); err != nil {
		return err
	}
	return s.Print(c.App.Writer, st)
}

// watchStatus prints one line per busy/idle change until the server closes
// the stream or the user interrupts.
func watchStatus(c *cli.Context, s *Settings) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := s.Client().DialStatus(ctx)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		stream.Close()
	}()

	var (
		last  bool
		first = true
	)
	for {
		busy, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil || connection.IsClosed(err) {
				return nil
			}
			return err
		}
		if !first && busy == last {
			continue
		}
		first, last = false, busy

		ev := statusEvent{Time: time.Now(), Busy: busy}
		if s.Output == output.FormatTable {
			state := "idle"
			if busy {
				state = "busy"
			}
			fmt.Fprintf(c.App.Writer, "%s  %s\n", ev.Time.Format("15:04:05"), state)
			continue
		}
		if err := s.Print(c.App.Writer, ev); err != nil {
			return err
		}
	}
}

type serverInfo struct {
	Server   string `json:"server"`
	Version  string `json:"version"`
	MaxBytes uint64 `json:"max_bytes" table:"bytes"`
	TTL      string `json:"ttl"`
}

func showInfo(c *cli.Context) error {
	s, err := LoadSettings(c)
	if err != nil {
		return err
	}
	client := s.Client()

	var health healthResponse
	if err := getJSON(c.Context, client, "/health", &health); err != nil {
		return err
	}
	var limits limitsResponse
	if err := getJSON(c.Context, client, "/api/config", &limits); err != nil {
		return err
	}

	return s.Print(c.App.Writer, serverInfo{
		Server:   client.BaseURL(),
		Version:  health.Version,
		MaxBytes: limits.MaxBytes,
		TTL:      (time.Duration(limits.TTLSeconds) * time.Second).String(),
	})
}
