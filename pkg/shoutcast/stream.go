package shoutcast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultUserAgent = "iTunes/12.9.2 (Macintosh; OS X 10.14.3) AppleWebKit/606.4.5"

// MetadataCallbackFunc is the type of the function called when the stream metadata changes
type MetadataCallbackFunc func(m *Metadata)

// Options tune how a stream is opened. The zero value is usable.
type Options struct {
	// Timeout for establishing the TCP connection
	DialTimeout time.Duration

	// Timeout for receiving the response headers; the body itself is never timed out
	HeaderTimeout time.Duration

	UserAgent string

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.HeaderTimeout <= 0 {
		o.HeaderTimeout = 10 * time.Second
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Stream represents an open shoutcast stream.
type Stream struct {
	// The name of the server
	Name string

	// What category the server falls under
	Genre string

	// The description of the stream
	Description string

	// Homepage of the server
	URL string

	// Bitrate of the server
	Bitrate int

	// Optional function to be executed when stream metadata changes
	MetadataCallbackFunc MetadataCallbackFunc

	// Amount of bytes to read before expecting a metadata block; zero when the
	// server does not interleave metadata
	metaint int

	// Stream metadata
	metadata *Metadata

	// The number of bytes read since last metadata block
	pos int

	// The underlying data stream
	rc io.ReadCloser

	transport *http.Transport

	logger *slog.Logger
}

// Open establishes a connection to a remote server.
// It automatically handles playlist files (.pls, .m3u) and resolves them to stream URLs.
func Open(ctx context.Context, url string, opts Options) (*Stream, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.With("url", url)
	logger.Info("opening stream")

	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	transport := &http.Transport{
		DialContext: dialer.DialContext,
		// Only the initial response is timed out; the body streams indefinitely.
		ResponseHeaderTimeout: opts.HeaderTimeout,
		DisableCompression:    true,
		IdleConnTimeout:       30 * time.Second,
	}
	client := &http.Client{Transport: transport}
	// The playlist connection is idle once resolved; the stream connection is
	// still in use when Open returns.
	defer transport.CloseIdleConnections()

	resolvedURL, err := resolvePlaylistURL(ctx, client, opts.UserAgent, url)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve playlist URL: %w", err)
	}
	if resolvedURL != url {
		logger.Info("resolved playlist to stream URL", "stream", resolvedURL)
		url = resolvedURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("accept", "*/*")
	req.Header.Add("user-agent", opts.UserAgent)
	req.Header.Add("icy-metadata", "1")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	for k, v := range resp.Header {
		logger.Debug("HTTP header", "key", k, "value", v[0])
	}

	var bitrate int
	if rawBitrate := strings.TrimSpace(resp.Header.Get("icy-br")); rawBitrate != "" {
		// Some servers send "128,128"
		rawBitrate, _, _ = strings.Cut(rawBitrate, ",")
		bitrate, err = strconv.Atoi(rawBitrate)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("cannot parse bitrate: %v", err)
		}
	}

	var metaint int
	if rawMetaint := strings.TrimSpace(resp.Header.Get("icy-metaint")); rawMetaint != "" {
		metaint, err = strconv.Atoi(rawMetaint)
		if err != nil || metaint < 0 {
			resp.Body.Close()
			return nil, fmt.Errorf("cannot parse metaint: %q", rawMetaint)
		}
	}

	return &Stream{
		Name:        resp.Header.Get("icy-name"),
		Genre:       resp.Header.Get("icy-genre"),
		Description: resp.Header.Get("icy-description"),
		URL:         resp.Header.Get("icy-url"),
		Bitrate:     bitrate,
		metaint:     metaint,
		rc:          resp.Body,
		transport:   transport,
		logger:      logger,
	}, nil
}

// newStream wraps an already connected body; used by tests.
func newStream(rc io.ReadCloser, metaint int) *Stream {
	return &Stream{metaint: metaint, rc: rc, logger: slog.Default()}
}

// Read implements the standard Read interface. Only audio bytes are returned;
// metadata blocks are consumed and reported through MetadataCallbackFunc.
func (s *Stream) Read(buf []byte) (int, error) {
	if s.metaint == 0 {
		return s.rc.Read(buf)
	}

	if s.pos == s.metaint {
		if err := s.readMetadata(); err != nil {
			return 0, err
		}
		s.pos = 0
	}

	// Never read past the next metadata boundary.
	want := len(buf)
	if left := s.metaint - s.pos; want > left {
		want = left
	}

	n, err := s.rc.Read(buf[:want])
	s.pos += n
	return n, err
}

// readMetadata consumes one length-prefixed metadata block.
func (s *Stream) readMetadata() error {
	var metaLenByte [1]byte
	if _, err := io.ReadFull(s.rc, metaLenByte[:]); err != nil {
		return err
	}

	metaBlockLen := int(metaLenByte[0]) * 16
	if metaBlockLen == 0 {
		// Unchanged metadata is sent as an empty block.
		return nil
	}

	block := make([]byte, metaBlockLen)
	if _, err := io.ReadFull(s.rc, block); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}

	if m := NewMetadata(block); !m.Equals(s.metadata) {
		s.metadata = m
		if s.MetadataCallbackFunc != nil {
			s.MetadataCallbackFunc(m)
		}
	}

	return nil
}

// Metadata returns the last metadata block seen, or nil.
func (s *Stream) Metadata() *Metadata {
	return s.metadata
}

// Close closes the stream
func (s *Stream) Close() error {
	s.logger.Info("closing stream")
	err := s.rc.Close()
	if s.transport != nil {
		s.transport.CloseIdleConnections()
	}
	return err
}
