package command

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/twinisland/filebay/internal/cli/connection"
)

// GetCommand downloads a file by code.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Aliases:   []string{"fetch"},
		Usage:     "Download a file by its code",
		ArgsUsage: "CODE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Destination file or directory, - for stdout (default: the stored name)",
			},
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Overwrite an existing file",
			},
		},
		Action: getFile,
	}
}

type downloadResult struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size" table:"bytes"`
}

func getFile(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("get expects exactly one CODE argument")
	}
	code := c.Args().First()

	s, err := LoadSettings(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp, err := s.Client().Get(ctx, "/api/download/"+url.PathEscape(code))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return connection.ParseError(resp)
	}

	name := attachmentName(resp.Header.Get("Content-Disposition"), code)
	dest := c.String("out")

	if dest == "-" {
		_, err := io.Copy(c.App.Writer, resp.Body)
		return err
	}

	dest, err = destination(dest, name)
	if err != nil {
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if c.Bool("force") {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(dest, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", dest)
		}
		return err
	}

	var w io.Writer = f
	bar := s.progress(c, name, resp.ContentLength)
	if bar != nil {
		w = io.MultiWriter(f, bar)
	}

	n, err := io.Copy(w, resp.Body)
	if err == nil && resp.ContentLength >= 0 && n != resp.ContentLength {
		err = fmt.Errorf("short download: got %d of %d bytes", n, resp.ContentLength)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return err
	}
	if bar != nil {
		bar.Finish()
	}

	return s.Print(c.App.Writer, downloadResult{Code: code, Name: name, Path: dest, Size: n})
}

// attachmentName extracts a safe base name from Content-Disposition.
func attachmentName(header, fallback string) string {
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return fallback
	}
	name := filepath.Base(filepath.Clean("/" + params["filename"]))
	if name == "/" || name == "." || name == "" {
		return fallback
	}
	return name
}

// destination resolves --out: empty means the stored name in the working
// directory, an existing directory gets the stored name appended.
func destination(out, name string) (string, error) {
	if out == "" {
		return name, nil
	}
	info, err := os.Stat(out)
	if err == nil && info.IsDir() {
		return filepath.Join(out, name), nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	return out, nil
}
