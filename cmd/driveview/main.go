// driveview - Drive media viewer core CLI
//
// Exercises the cache and sync layer from the command line:
//
//	driveview sync                 Run an incremental sync, print a summary
//	driveview ls [-folders]        Sync and list files
//	driveview timestamp            Show cache freshness
//	driveview open <file-id>       Fetch content into the blob cache, print its path
//	driveview clear                Delete the account's snapshot store
//	driveview login -token <tok>   Save a bearer token for later runs
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/driveview/driveview/internal/auth"
	"github.com/driveview/driveview/internal/config"
	"github.com/driveview/driveview/internal/logging"
	"github.com/driveview/driveview/internal/metrics"
	"github.com/driveview/driveview/internal/remote"
	"github.com/driveview/driveview/internal/retry"
	"github.com/driveview/driveview/internal/viewer"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "sync":
		cmdSync(os.Args[2:])
	case "ls":
		cmdLs(os.Args[2:])
	case "timestamp":
		cmdTimestamp(os.Args[2:])
	case "open":
		cmdOpen(os.Args[2:])
	case "clear":
		cmdClear(os.Args[2:])
	case "login":
		cmdLogin(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: driveview <sync|ls|timestamp|open|clear|login> [flags]")
}

// sessionFlags are the flags shared by every session-backed command.
type sessionFlags struct {
	account   *string
	tokenPath *string
}

func addSessionFlags(fs *flag.FlagSet) *sessionFlags {
	return &sessionFlags{
		account:   fs.String("account", "", "Signed-in account identifier (required)"),
		tokenPath: fs.String("token-file", auth.DefaultTokenPath(), "Bearer token file"),
	}
}

// openSession wires config, logging, metrics, the Drive remote, and the
// session for one CLI invocation.
func openSession(ctx context.Context, sf *sessionFlags) (*viewer.Session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return nil, err
	}

	account := *sf.account
	if account == "" {
		account = os.Getenv("DRIVEVIEW_ACCOUNT")
	}
	if account == "" {
		// Fall back to the account recorded at login.
		if tf, err := auth.LoadTokenFile(*sf.tokenPath); err == nil {
			account = tf.Account
		}
	}
	if account == "" {
		return nil, fmt.Errorf("no account: use -account, DRIVEVIEW_ACCOUNT, or driveview login")
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, metrics.Handler()); err != nil {
				logging.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	src := auth.NewFileSource(*sf.tokenPath, time.Minute)
	drive, err := remote.NewDrive(ctx, src, remote.DriveConfig{
		PageSize: cfg.PageSize,
		RetryConfig: retry.Config{
			MaxAttempts: cfg.RetryMaxAttempts,
			InitialWait: cfg.RetryInitialWait,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
			Jitter:      0.1,
		},
	})
	if err != nil {
		return nil, err
	}

	session, err := viewer.NewSession(viewer.Options{
		Account:   account,
		CacheDir:  cfg.CacheDir,
		BlobDir:   cfg.BlobDir,
		ChunkSize: cfg.ChunkSize,
		PageCap:   cfg.PageCap,
		Lister:    drive,
		Fetcher:   drive,
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	logging.Sync()
	os.Exit(1)
}

func cmdSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	sf := addSessionFlags(fs)
	fs.Parse(args)

	ctx := signalContext()
	session, err := openSession(ctx, sf)
	if err != nil {
		fatal(err)
	}
	defer session.Close()

	start := time.Now()
	files, err := session.FetchDriveFiles(ctx)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("%d files (synced in %s)\n", len(files), time.Since(start).Round(time.Millisecond))
}

func cmdLs(args []string) {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	sf := addSessionFlags(fs)
	foldersOnly := fs.Bool("folders", false, "List only folders")
	fs.Parse(args)

	ctx := signalContext()
	session, err := openSession(ctx, sf)
	if err != nil {
		fatal(err)
	}
	defer session.Close()

	files, err := session.FetchDriveFiles(ctx)
	if err != nil {
		fatal(err)
	}

	for _, f := range files {
		if *foldersOnly && !f.IsFolder() {
			continue
		}
		fmt.Printf("%-44s  %-24s  %10d  %s\n",
			f.ID, f.MimeType, f.Size, f.Name)
	}
}

func cmdTimestamp(args []string) {
	fs := flag.NewFlagSet("timestamp", flag.ExitOnError)
	sf := addSessionFlags(fs)
	fs.Parse(args)

	ctx := signalContext()
	session, err := openSession(ctx, sf)
	if err != nil {
		fatal(err)
	}
	defer session.Close()

	ts, ok := session.CacheTimestamp(ctx)
	if !ok {
		fmt.Println("no cached snapshot")
		return
	}
	fmt.Printf("cached as of %s (%s ago)\n",
		ts.Local().Format(time.RFC3339), time.Since(ts).Round(time.Second))
}

func cmdOpen(args []string) {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	sf := addSessionFlags(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fatal(fmt.Errorf("usage: driveview open <file-id>"))
	}
	fileID := fs.Arg(0)

	ctx := signalContext()
	session, err := openSession(ctx, sf)
	if err != nil {
		fatal(err)
	}
	// No Close here: closing releases blobs, and the printed path must
	// outlive the process. The file stays in the blob dir until released.

	path, err := session.GetBlobPathForFile(ctx, fileID)
	if err != nil {
		fatal(err)
	}
	fmt.Println(path)
}

func cmdClear(args []string) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	sf := addSessionFlags(fs)
	fs.Parse(args)

	ctx := signalContext()
	session, err := openSession(ctx, sf)
	if err != nil {
		fatal(err)
	}
	defer session.Close()

	if err := session.ClearFileCache(); err != nil {
		fatal(err)
	}
	fmt.Println("cache cleared")
}

func cmdLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	token := fs.String("token", "", "Bearer token from the sign-in flow (required)")
	account := fs.String("account", "", "Account identifier the token belongs to (required)")
	tokenPath := fs.String("token-file", auth.DefaultTokenPath(), "Where to save the token")
	fs.Parse(args)

	if *token == "" || *account == "" {
		fatal(fmt.Errorf("login requires -token and -account"))
	}

	tf := &auth.TokenFile{Token: *token, Account: *account}
	if err := auth.SaveTokenFile(*tokenPath, tf); err != nil {
		fatal(err)
	}
	if tf.ExpiresAt.IsZero() {
		fmt.Printf("token saved for %s (no expiry claim)\n", *account)
		return
	}
	fmt.Printf("token saved for %s, expires %s\n", *account, tf.ExpiresAt.Format(time.RFC3339))
}
