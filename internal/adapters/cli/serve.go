package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *Options) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API, upload extraction and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port == "" {
				port = opts.Config.APIPort
			}

			ctx := cmd.Context()
			deps, err := opts.Open(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			handler, err := deps.API()
			if err != nil {
				return err
			}
			opts.Logger.Info("api listening", "addr", ":"+port)
			return serveHTTP(ctx, ":"+port, handler)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (default $API_PORT)")
	return cmd
}

// serveHTTP runs a server until ctx is cancelled, then shuts it down.
func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:    addr,
		Handler: handler,
		// Extraction requests run OCR synchronously.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
