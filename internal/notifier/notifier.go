package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/oshokin/cave-device/internal/logger"
	"github.com/oshokin/cave-device/internal/version"
)

// defaultTimeout bounds a single ntfy request.
const defaultTimeout = 10 * time.Second

// errUnexpectedStatus is returned when ntfy answers with a non-2xx status.
var errUnexpectedStatus = errors.New("unexpected ntfy status")

// Notifier delivers an alert.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Log writes alerts to the context logger at error level.
type Log struct{}

// Notify logs the alert. It never fails.
func (Log) Notify(ctx context.Context, title, message string) error {
	logger.ErrorKV(ctx, title, "details", message)

	return nil
}

// Ntfy posts alerts to an ntfy.sh topic URL.
type Ntfy struct {
	// url is the full topic URL, e.g. https://ntfy.sh/my-cave.
	url string
	// client performs the requests.
	client *http.Client
}

// NewNtfy creates an ntfy notifier for the given topic URL.
func NewNtfy(url string) *Ntfy {
	return &Ntfy{
		url: url,
		client: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// Notify posts the alert with high priority.
func (n *Ntfy) Notify(ctx context.Context, title, message string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", "high")
	req.Header.Set("Tags", "warning,cheese")
	req.Header.Set("User-Agent", version.UserAgent("cave-device"))

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy request: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)
	}

	return nil
}

// Multi fans an alert out to several notifiers and joins their errors.
type Multi []Notifier

// Notify calls every notifier, even after one fails.
func (m Multi) Notify(ctx context.Context, title, message string) error {
	var errs []error

	for _, n := range m {
		if err := n.Notify(ctx, title, message); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Async delivers alerts to the wrapped notifier on a background goroutine
// bounded by a timeout, so a slow endpoint never holds up the caller.
// Delivery errors are logged.
type Async struct {
	// next receives the alert.
	next Notifier
	// timeout bounds one delivery.
	timeout time.Duration
}

// NewAsync wraps next. A non-positive timeout means defaultTimeout.
func NewAsync(next Notifier, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Async{
		next:    next,
		timeout: timeout,
	}
}

// Notify schedules the delivery and returns immediately. Cancelling ctx
// does not abort a delivery already scheduled.
func (a *Async) Notify(ctx context.Context, title, message string) error {
	ctx = context.WithoutCancel(ctx)

	go func() {
		sendCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		if err := a.next.Notify(sendCtx, title, message); err != nil {
			logger.ErrorKV(ctx, "Failed to deliver alert", "title", title, "error", err)
		}
	}()

	return nil
}
