package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
)

func runServe(ctx context.Context, args []string) int {
	var (
		c    common
		port int
	)
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	c.register(fs)
	fs.IntVar(&port, "port", 0, "listen port (default from config)")
	if !parse(fs, args) {
		return exitUsage
	}
	out := newRenderer(os.Stdout, os.Stderr)

	ctr, st, err := setup(ctx, &c, nil)
	if err != nil {
		out.fail(err)
		return exitFail
	}
	defer ctr.Close()
	out.status(st)

	if port == 0 {
		port = ctr.Config.Server.Port
	}
	mux := chi.NewRouter()
	mux.Mount("/", ctr.Router())

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 10 * time.Minute, // a full batch runs inside one request
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		ctr.Logger.Info("server", "Listening", map[string]interface{}{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			out.fail(err)
			return exitFail
		}
	case <-ctx.Done():
	}

	ctr.Logger.Info("server", "Shutting down", nil)
	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		ctr.Logger.Error("server", "Shutdown error", map[string]interface{}{"error": err})
	}
	return exitOK
}
