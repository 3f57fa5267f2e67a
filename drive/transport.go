package drive

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phenobot/carousel/errors"
	"github.com/phenobot/carousel/logger"
	"github.com/phenobot/carousel/settings"
)

// ErrBadResponse marks a transport failure: the controller answered, but
// with something we could not use. Not retried.
var ErrBadResponse = errors.New("malformed controller response")

// Transport performs one command exchange with the motion controller and
// returns the echoed command name from the response body.
type Transport interface {
	// Send blocks until the controller responds or the exchange fails.
	// The dispatcher calls it from a worker goroutine, never from the
	// event loop.
	Send(ctx context.Context, cmd Command) (echo string, err error)
	// CancelInFlight aborts the currently running Send, if any. Used by
	// the stop preemption path; best effort.
	CancelInFlight()
}

// IsTimeout reports whether the transport error was a connect/response
// timeout, the only error class the dispatcher retries.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// HTTPTransport talks to the motion controller over plain HTTP:
// GET http://{ip}:{port}/{command}. The response body's last <br>-separated
// line, stripped of line breaks, is the command echo.
type HTTPTransport struct {
	cfg    func() *settings.Settings
	client *http.Client
	logger *zap.SugaredLogger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewHTTPTransport creates a transport using the live settings accessor.
func NewHTTPTransport(cfg func() *settings.Settings) *HTTPTransport {
	timeout := time.Duration(cfg().HTTPTimeoutSeconds) * time.Second
	return &HTTPTransport{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.ComponentLogger("drive.transport"),
	}
}

// Send performs one exchange. A stop command is routed to the UDP datagram
// path when settings ask for it; the local "stop" echo then plays the role
// of the cancellation acknowledgment.
func (t *HTTPTransport) Send(ctx context.Context, cmd Command) (string, error) {
	s := t.cfg()
	if cmd == CmdStop && s.UseUDPStop {
		if err := t.sendStopDatagram(s); err != nil {
			return "", err
		}
		return string(CmdStop), nil
	}

	reqCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.cancel = nil
		t.mu.Unlock()
		cancel()
	}()

	url := s.BaseURL() + "/" + string(cmd)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrapf(err, "failed to build request for %s", cmd)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/plain")

	t.logger.Infow("Sending command", logger.FieldCommand, string(cmd), logger.FieldAddress, url)

	res, err := t.client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "request for %s failed", cmd)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", errors.Wrapf(ErrBadResponse, "%s returned status %s", cmd, res.Status)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", errors.Wrapf(ErrBadResponse, "unreadable body for %s: %v", cmd, err)
	}

	return ParseEcho(string(body)), nil
}

// CancelInFlight aborts the current Send, if one is running.
func (t *HTTPTransport) CancelInFlight() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
}

// sendStopDatagram fires the out-of-band STOP datagram at the controller's
// stop port. Fire and forget.
func (t *HTTPTransport) sendStopDatagram(s *settings.Settings) error {
	addr := net.JoinHostPort(s.TargetIP, strconv.Itoa(s.TargetStopPort))
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to reach stop port %s", addr)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("STOP")); err != nil {
		return errors.Wrap(err, "failed to send stop datagram")
	}
	t.logger.Infow("Sent stop datagram", logger.FieldAddress, addr)
	return nil
}

// ParseEcho extracts the echoed command from a response body: the last
// <br>-separated line with CR/LF stripped.
func ParseEcho(body string) string {
	parts := strings.Split(body, "<br>")
	last := parts[len(parts)-1]
	last = strings.ReplaceAll(last, "\n", "")
	last = strings.ReplaceAll(last, "\r", "")
	return last
}
