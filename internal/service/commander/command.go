package commander

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oshokin/cave-device/internal/config"
	"github.com/oshokin/cave-device/internal/logger"
	"github.com/oshokin/cave-device/internal/transport"
)

// Options configures a single direct method invocation.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// Address overrides the device command address from config when specified.
	Address string
	// Method is the direct method name.
	Method string
	// Payload is the method argument.
	Payload string
	// Wait keeps retrying while the device is unreachable.
	Wait bool
	// Out receives the formatted response. Defaults to stdout.
	Out io.Writer
}

// defaultRetryInterval is the delay between attempts while waiting for the device.
const defaultRetryInterval = 1 * time.Second

// ErrMethodFailed is returned when the device answers with a non-2xx status.
var ErrMethodFailed = errors.New("direct method failed")

// Run invokes one direct method on the device and prints the response.
//
//nolint:cyclop // Retry and response paths are linear but numerous.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "cave-commander")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	address := cfg.CommandAddress
	if opts.Address != "" {
		address = opts.Address
	}

	client, err := Dial(ctx, address, WithCallTimeout(cfg.Timeout))
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	logger.InfoKV(ctx, "Invoking direct method", "address", address, "method", opts.Method, "payload", opts.Payload)

	// attempt reports whether a response was received.
	attempt := func() (transport.Response, bool, error) {
		resp, err := client.Invoke(ctx, opts.Method, opts.Payload)
		if err == nil {
			return resp, true, nil
		}

		if opts.Wait && status.Code(err) == codes.Unavailable {
			logger.WarnKV(ctx, "Device unavailable, retrying", "error", err)

			return transport.Response{}, false, nil
		}

		return transport.Response{}, false, err
	}

	resp, done, err := attempt()
	if err != nil {
		return err
	}

	if !done {
		ticker := time.NewTicker(defaultRetryInterval)
		defer ticker.Stop()

		for !done {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				resp, done, err = attempt()
				if err != nil {
					return err
				}
			}
		}
	}

	if _, err := fmt.Fprintln(out, formatResponse(opts.Method, resp)); err != nil {
		return fmt.Errorf("write response: %w", err)
	}

	if resp.Status < transport.StatusOK || resp.Status >= 300 {
		return fmt.Errorf("%w: %s returned %d", ErrMethodFailed, opts.Method, resp.Status)
	}

	return nil
}

// formatResponse renders a response for the terminal.
func formatResponse(method string, resp transport.Response) string {
	message := resp.Message
	if message == "" {
		message = "<empty>"
	}

	return fmt.Sprintf("%s: %d %s", method, resp.Status, message)
}
