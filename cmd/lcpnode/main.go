// Command lcpnode runs one LCP node: discovery, messaging, and the HTTP/
// JSON API, all under a single root supervisor, grounded on the teacher's
// cmd/syncthing/discosrv pattern of building a top-level suture.Supervisor
// in main and Serve()-ing it until a signal arrives (cmd/syncthing/
// relaysrv/relaysrv.go's os/signal shutdown idiom).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/willabides/kongplete"
	_ "go.uber.org/automaxprocs"

	"github.com/thejerf/suture/v4"

	"github.com/lanchat/lcpnode/internal/api"
	"github.com/lanchat/lcpnode/internal/engine"
	"github.com/lanchat/lcpnode/internal/identity"
)

// CLI is lcpnode's flag set, per spec §6's External Interfaces: a
// kong-tagged struct in the teacher's cmd/syncthing/relaysrv style, plus
// a kongplete completion subcommand (no pack exemplar for kongplete;
// wired from its documented public API per DESIGN.md).
type CLI struct {
	UserID            string        `required:"" help:"This node's user id (at most 20 bytes, longer ids are truncated)."`
	BroadcastInterval time.Duration `default:"1s" help:"Interval between discovery broadcast probes."`
	DownloadsDir      string        `default:"./downloads" help:"Directory incoming files are written to. Created if absent."`
	StateDir          string        `default:"." help:"Directory holding peers.json and history.json."`
	ListenHTTP        string        `default:"127.0.0.1:8080" help:"Bind address for the HTTP/JSON API."`
	SentryDSN         string        `help:"Optional Sentry DSN for crash and error reporting."`

	InstallCompletions kongplete.InstallCompletions `cmd:"" help:"Install shell completions."`
}

func main() {
	var cli CLI
	parser := kong.Must(&cli, kong.Description("lcpnode: a Local Chat Protocol node."))
	kongplete.Complete(parser)
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if ctx.Command() == "install-completions" {
		ctx.FatalIfErrorf(ctx.Run())
		return
	}

	if err := run(cli); err != nil {
		fmt.Fprintln(os.Stderr, "lcpnode:", err)
		os.Exit(1)
	}
}

func run(cli CLI) error {
	self := identity.Normalize(cli.UserID)

	downloads, err := prepareIsolatedDir(cli.DownloadsDir)
	if err != nil {
		return fmt.Errorf("downloads dir: %w", err)
	}

	cfg := engine.Config{
		Self:              self,
		PeersPath:         filepath.Join(cli.StateDir, "peers.json"),
		HistoryPath:       filepath.Join(cli.StateDir, "history.json"),
		Downloads:         downloads,
		BroadcastInterval: cli.BroadcastInterval,
		SentryDSN:         cli.SentryDSN,
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}

	apiSvc := api.New(cli.ListenHTTP, eng)

	root := suture.New("lcpnode-root", suture.Spec{PassThroughPanics: false})
	root.Add(runnerService{"engine", eng.Run})
	root.Add(apiSvc)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	if err := root.Serve(rootCtx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// prepareIsolatedDir creates dir if absent and resolves it to an absolute,
// symlink-free path, so later joins of attacker-influenced filenames
// beneath it (see messaging.sanitizeFilename) can't be walked back out via
// a symlinked downloads directory itself, per spec §6's "isolated —
// refuses to resolve outside itself" requirement.
func prepareIsolatedDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// runnerService adapts a func(context.Context) error into a named
// suture.Service, the same shape as internal/engine's namedService, for
// the one extra top-level worker (the Engine itself) that isn't already
// one of its six supervised children.
type runnerService struct {
	name string
	run  func(context.Context) error
}

func (s runnerService) Serve(ctx context.Context) error { return s.run(ctx) }
func (s runnerService) String() string                  { return s.name }
