package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"lanbox/internal/auth"
	"lanbox/internal/config"
	"lanbox/internal/fsutil"
	"lanbox/internal/httpserver"
	"lanbox/internal/upload"
)

// Scratch files older than this are leftovers from interrupted uploads.
const scratchMaxAge = time.Hour

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if len(os.Args) > 1 && os.Args[1] == "hashkey" {
		hashKeyCmd(os.Args[2:])
		return
	}

	envFile := flag.String("env", ".env", "optional dotenv file (existing environment wins)")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load %s: %v", *envFile, err)
	}

	cfg, err := config.FromEnv(os.Getenv)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := fsutil.EnsureDirs(cfg.FilesDir, cfg.TmpDir); err != nil {
		log.Fatalf("storage dirs: %v", err)
	}
	if n, err := upload.SweepScratch(cfg.TmpDir, scratchMaxAge, time.Now()); err != nil {
		log.Printf("msg=scratch_sweep_failed err=%v", err)
	} else if n > 0 {
		log.Printf("msg=scratch_swept removed=%d", n)
	}
	log.Printf("FILES_DIR = %s", cfg.FilesDir)
	log.Printf("TMP_DIR   = %s", cfg.TmpDir)

	srv, err := httpserver.New(httpserver.Options{Config: cfg})
	if err != nil {
		log.Fatalf("server init: %v", err)
	}

	hs := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           withHeaders(srv.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("lanbox listening on http://%s", cfg.Addr())
		errCh <- hs.ListenAndServe()
	}()

	if cfg.UsingDefaultKey() {
		log.Printf("WARNING: using the default API key %q; set API_KEY before exposing this on a network", config.DefaultAPIKey)
	}
	printBanner(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("msg=shutting_down signal=%s", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(ctx); err != nil {
			log.Fatalf("shutdown: %v", err)
		}
		log.Printf("msg=shutdown_complete")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}
}

func hashKeyCmd(args []string) {
	fset := flag.NewFlagSet("hashkey", flag.ExitOnError)
	var (
		key  = fset.String("k", "", "API key to hash (required)")
		cost = fset.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	)
	_ = fset.Parse(args)
	if *key == "" {
		fmt.Fprintln(os.Stderr, "usage: lanbox hashkey -k <key>")
		os.Exit(2)
	}
	if *cost < bcrypt.MinCost || *cost > bcrypt.MaxCost {
		fmt.Fprintf(os.Stderr, "invalid cost %d (min=%d max=%d)\n", *cost, bcrypt.MinCost, bcrypt.MaxCost)
		os.Exit(2)
	}
	h, err := auth.HashKey(*key, *cost)
	if err != nil {
		log.Fatalf("bcrypt: %v", err)
	}
	fmt.Println(h)
}

func withHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		// thumbs set their own Cache-Control
		if !strings.HasPrefix(r.URL.Path, "/thumbs/") {
			w.Header().Set("Cache-Control", "no-store")
		}
		next.ServeHTTP(w, r)
	})
}
