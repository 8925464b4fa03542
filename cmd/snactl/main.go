// Command snactl runs the SNA policy decision point and its operator
// checks.
//
//	snactl serve                  start the PDP server
//	snactl policy lint <file>     validate a policy document offline
//	snactl webhook check <url>    run the webhook URL safety check
//
// The lint and check subcommands run the same validation the server runs
// at startup, so operators can catch a bad policy or an unsafe webhook
// URL before a deploy.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sentra-ai/sna"
	"github.com/sentra-ai/sna/internal/notify"
	"github.com/sentra-ai/sna/internal/policy"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage()
		return 2
	}

	switch os.Args[1] {
	case "serve":
		return serve()
	case "policy":
		if len(os.Args) == 4 && os.Args[2] == "lint" {
			return policyLint(os.Args[3])
		}
		fmt.Fprintln(os.Stderr, "usage: snactl policy lint <file>")
		return 2
	case "webhook":
		if len(os.Args) == 4 && os.Args[2] == "check" {
			return webhookCheck(os.Args[3])
		}
		fmt.Fprintln(os.Stderr, "usage: snactl webhook check <url>")
		return 2
	case "version", "--version":
		fmt.Println("snactl", version)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "snactl: unknown command %q\n", os.Args[1])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: snactl <command>

commands:
  serve                 start the policy decision point server
  policy lint <file>    validate a policy document without starting the server
  webhook check <url>   check a webhook URL against the private-network rules
  version               print the build version`)
}

func serve() int {
	level := slog.LevelInfo
	if os.Getenv("SNA_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := sna.New(
		sna.WithLogger(logger),
		sna.WithVersion(version),
	)
	if err != nil {
		slog.Error("startup failed", "error", err)
		return 1
	}
	if err := app.Run(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func policyLint(path string) int {
	doc, warnings, err := policy.LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "snactl: policy lint failed: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	fmt.Printf("%s: ok (version %s, %d tools)\n", path, doc.Version, len(doc.Tools))
	return 0
}

func webhookCheck(rawURL string) int {
	if err := notify.ValidateWebhookURL(rawURL); err != nil {
		fmt.Fprintf(os.Stderr, "snactl: webhook check failed: %v\n", err)
		return 1
	}
	fmt.Printf("%s: ok\n", rawURL)
	return 0
}
