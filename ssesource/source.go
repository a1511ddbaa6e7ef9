// Package ssesource reads tool notifications from a plain server-sent events
// endpoint. Each SSE message carries one JSON-RPC notification.
package ssesource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/boat-builder/agentrelay"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/tidwall/gjson"
)

type Option func(*options)

type options struct {
	client *http.Client
	header http.Header
	logger *slog.Logger
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.client = client }
}

// WithHeader adds a request header, e.g. Authorization.
func WithHeader(key, value string) Option {
	return func(o *options) { o.header.Add(key, value) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

var _ agentrelay.NotificationSource = &Source{}

// Source is one open event stream.
type Source struct {
	decoder ssestream.Decoder
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	events chan agentrelay.Notification
	// err is set before events is closed
	err error
}

// Dial opens the event stream at url. The stream lives until Close, the end
// of the response, or an explicit stream_end notification.
func Dial(ctx context.Context, url string, opts ...Option) (*Source, error) {
	o := &options{client: http.DefaultClient, header: http.Header{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	// the stream outlives the dial context
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ssesource: %w", err)
	}
	for key, values := range o.header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	res, err := o.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ssesource: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		res.Body.Close()
		cancel()
		return nil, fmt.Errorf("ssesource: unexpected status %s", res.Status)
	}

	s := &Source{
		decoder: ssestream.NewDecoder(res),
		logger:  o.logger.With("component", "ssesource", "url", url),
		ctx:     streamCtx,
		cancel:  cancel,
		events:  make(chan agentrelay.Notification),
	}
	go s.read()
	return s, nil
}

func (s *Source) read() {
	defer close(s.events)
	defer s.decoder.Close()

	for s.decoder.Next() {
		ev := s.decoder.Event()
		if ev.Type != "" && ev.Type != "message" {
			continue
		}
		if !gjson.ValidBytes(ev.Data) {
			s.logger.Debug("Skipping event with invalid JSON")
			continue
		}
		n := agentrelay.ParseNotification(ev.Data)
		if !agentrelay.IsNotificationMethod(n.Method) {
			continue
		}
		select {
		case s.events <- n:
		case <-s.ctx.Done():
			return
		}
		if n.IsStreamEnd() {
			return
		}
	}
	if err := s.decoder.Err(); err != nil && s.ctx.Err() == nil {
		s.err = err
	}
}

// Next returns the next notification, io.EOF at the end of the stream, or the
// read error that ended it.
func (s *Source) Next(ctx context.Context) (agentrelay.Notification, error) {
	select {
	case n, ok := <-s.events:
		if !ok {
			if s.err != nil {
				return agentrelay.Notification{}, s.err
			}
			return agentrelay.Notification{}, io.EOF
		}
		return n, nil
	case <-ctx.Done():
		return agentrelay.Notification{}, ctx.Err()
	}
}

func (s *Source) Close() error {
	s.cancel()
	return nil
}

var _ agentrelay.Notifier = &Notifier{}

// Notifier dials a new stream for every subscription.
type Notifier struct {
	URL     string
	Options []Option
}

func (n *Notifier) Subscribe(ctx context.Context) (agentrelay.NotificationSource, error) {
	return Dial(ctx, n.URL, n.Options...)
}
