package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/twinisland/filebay/internal/cli/connection"
	"github.com/twinisland/filebay/internal/cli/output"
)

// PutCommand uploads a file and prints its download code.
func PutCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Aliases:   []string{"send"},
		Usage:     "Upload a file and print its download code",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "Name to store the file under (default: base name of FILE)",
			},
		},
		Action: putFile,
	}
}

func putFile(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("put expects exactly one FILE argument")
	}
	path := c.Args().First()

	s, err := LoadSettings(c)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	name := c.String("name")
	if name == "" {
		name = filepath.Base(path)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := s.Client()

	var limits limitsResponse
	if err := getJSON(ctx, client, "/api/config", &limits); err != nil {
		return err
	}
	if limits.MaxBytes > 0 && uint64(info.Size()) > limits.MaxBytes {
		return fmt.Errorf("%s is %s, server accepts at most %s", path,
			output.FormatBytes(info.Size()), output.FormatBytes(int64(limits.MaxBytes)))
	}

	var app applyResponse
	if err := postJSON(ctx, client, "/api/apply", nil, nil, &app); err != nil {
		return fmt.Errorf("reserve upload slot: %w", err)
	}

	up := &uploader{
		client: client,
		token:  app.Token,
		chunk:  s.ChunkSize,
		bar:    s.progress(c, name, info.Size()),
	}
	if err := up.send(ctx, f); err != nil {
		abandon(client, app.Token)
		return err
	}

	var fin finalizeResponse
	query := url.Values{"token": {app.Token}, "name": {name}}
	if err := postJSON(ctx, client, "/api/finalize", query, nil, &fin); err != nil {
		if errors.Is(err, context.Canceled) {
			abandon(client, app.Token)
		}
		return fmt.Errorf("finalize: %w", err)
	}

	return s.Print(c.App.Writer, fin)
}

// uploader streams a file in chunks under one reservation token.
type uploader struct {
	client *connection.HTTPClient
	token  string
	chunk  int64
	bar    *output.ProgressBar
}

func (u *uploader) send(ctx context.Context, r io.Reader) error {
	buf := make([]byte, u.chunk)
	var offset uint64

	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			query := url.Values{
				"token":  {u.token},
				"offset": {strconv.FormatUint(offset, 10)},
			}
			var resp uploadResponse
			if err := postJSON(ctx, u.client, "/api/upload", query, bytes.NewReader(buf[:n]), &resp); err != nil {
				return fmt.Errorf("upload chunk at offset %d: %w", offset, err)
			}
			if want := offset + uint64(n); resp.Written != want {
				return fmt.Errorf("server acknowledged %d bytes, sent %d", resp.Written, want)
			}
			offset = resp.Written
			if u.bar != nil {
				u.bar.Set(int64(offset))
			}
		}

		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF), errors.Is(rerr, io.ErrUnexpectedEOF):
			if u.bar != nil {
				u.bar.Finish()
			}
			return nil
		default:
			return fmt.Errorf("read: %w", rerr)
		}
	}
}

// abandon releases the reservation. It runs on a fresh context so that it
// still goes out after Ctrl+C.
func abandon(client *connection.HTTPClient, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = postJSON(ctx, client, "/api/abandon", url.Values{"token": {token}}, nil, nil)
}

func getJSON(ctx context.Context, client *connection.HTTPClient, path string, target any) error {
	resp, err := client.Get(ctx, path)
	if err != nil {
		return err
	}
	return connection.ParseResponse(resp, target)
}

func postJSON(ctx context.Context, client *connection.HTTPClient, path string, query url.Values, body io.Reader, target any) error {
	resp, err := client.Post(ctx, path, query, body)
	if err != nil {
		return err
	}
	return connection.ParseResponse(resp, target)
}
