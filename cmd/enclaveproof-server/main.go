package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/aspect-build/enclaveproof/internal/logx"
	"github.com/aspect-build/enclaveproof/internal/sandbox"
	"github.com/aspect-build/enclaveproof/internal/server"
	"github.com/aspect-build/enclaveproof/internal/store"
	"github.com/aspect-build/enclaveproof/internal/version"
)

func main() {
	// The sandbox re-executes this binary to harden the verifier process.
	if len(os.Args) > 1 && os.Args[1] == "_exec" {
		args := os.Args[2:]
		if len(args) > 0 && args[0] == "--" {
			args = args[1:]
		}
		if err := sandbox.LockdownExec(args); err != nil {
			fmt.Fprintf(os.Stderr, "enclaveproof-server: %v\n", err)
		}
		os.Exit(1)
	}

	showVersion := flag.Bool("version", false, "Print version and exit")
	verbose := flag.Bool("verbose", false, "Enable verbose debug logs (same as --log-level debug)")
	logLevel := flag.String("log-level", "", "Log level: debug|info|warn|error (or ENCLAVEPROOF_LOG_LEVEL)")
	flag.BoolVar(showVersion, "v", false, "Print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n\n", version.String("enclaveproof-server"))
		fmt.Fprintf(os.Stderr, "enclaveproof-server verifies enclaves against published releases over HTTP and keeps an audit log.\n\n")
		fmt.Fprintf(os.Stderr, "Environment variables:\n")
		fmt.Fprintf(os.Stderr, "  ENCLAVEPROOF_ADMIN_TOKEN     Admin Bearer token for /v1/verify and the audit APIs (min 16 chars, required)\n")
		fmt.Fprintf(os.Stderr, "  ENCLAVEPROOF_PUBLIC_VERIFY   Serve /v1/verify without the admin token (default: false)\n")
		fmt.Fprintf(os.Stderr, "  ENCLAVEPROOF_VERIFIER_URL    Verifier payload URL (required)\n")
		fmt.Fprintf(os.Stderr, "  ENCLAVEPROOF_VERIFIER_SHA256 Expected SHA-256 of the verifier payload (optional)\n")
		fmt.Fprintf(os.Stderr, "  ENCLAVEPROOF_GITHUB_API      GitHub API base URL (default: https://api.github.com)\n")
		fmt.Fprintf(os.Stderr, "  ENCLAVEPROOF_GITHUB_TOKEN    GitHub token (falls back to GITHUB_TOKEN)\n")
		fmt.Fprintf(os.Stderr, "  ENCLAVEPROOF_HTTP_TIMEOUT    Timeout for payload and release fetches (default: 20s)\n")
		fmt.Fprintf(os.Stderr, "  ENCLAVEPROOF_LOCKDOWN        Run the verifier under seccomp lockdown (default: true)\n")
		fmt.Fprintf(os.Stderr, "  ENCLAVEPROOF_DB_PATH         SQLite database path (default: enclaveproof.db)\n")
		fmt.Fprintf(os.Stderr, "  ENCLAVEPROOF_LISTEN_ADDR     Listen address (default: :8080)\n")
		fmt.Fprintf(os.Stderr, "  ENCLAVEPROOF_CORS_ORIGINS    Comma-separated allowed CORS origins\n")
		fmt.Fprintf(os.Stderr, "  ENCLAVEPROOF_LOG_LEVEL       Log level: debug|info|warn|error (default: info)\n")
		fmt.Fprintf(os.Stderr, "\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("enclaveproof-server"))
		os.Exit(0)
	}

	if err := logx.Configure(*logLevel, *verbose); err != nil {
		log.Fatalf("configure logging: %v", err)
	}

	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	// Lockdown only meaningful on Linux
	cfg.Client.Lockdown = cfg.Client.Lockdown && runtime.GOOS == "linux"

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer st.Close()

	eng := cfg.Client.NewEngine()
	go func() {
		if _, err := eng.EnsureReady(context.Background()); err != nil {
			logx.Errorf("verifier warm-up failed, /v1/verify will report it: %v", err)
		}
	}()

	r := server.NewRouter(st, eng, cfg.Client.NewResolver(), cfg)
	logx.Infof("server config: verifier=%s lockdown=%v db=%s", cfg.Client.VerifierURL, cfg.Client.Lockdown, cfg.DBPath)

	log.Printf("enclaveproof-server listening on %s", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
