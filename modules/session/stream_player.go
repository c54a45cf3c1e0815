package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/zachfi/radioplayer/pkg/shoutcast"
)

var errNoItem = errors.New("no stream loaded")

// StreamPlayer plays a shoutcast/icecast stream into an audio writer. Loading
// an item connects immediately; the item becomes ready at the first MPEG
// frame. Paused streams stay connected so in-stream metadata keeps flowing.
type StreamPlayer struct {
	cfg    *Config
	logger *slog.Logger
	out    io.Writer

	mu            sync.Mutex
	handlers      Handlers
	url           string
	status        ItemStatus
	readiness     Readiness
	playWhenReady bool
	lastErr       error
	session       uint64
	cancel        context.CancelFunc
	sink          *audioSink

	copyWg sync.WaitGroup // running stream copies
}

var _ Player = (*StreamPlayer)(nil)

func NewStreamPlayer(cfg Config, out io.Writer, logger *slog.Logger) *StreamPlayer {
	cfg.applyDefaults()
	return &StreamPlayer{
		cfg:    &cfg,
		logger: logger.With("component", "stream_player"),
		out:    out,
	}
}

func (p *StreamPlayer) SetHandlers(h Handlers) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = h
}

func (p *StreamPlayer) ItemStatus() ItemStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Load replaces the current item and starts connecting to url.
func (p *StreamPlayer) Load(url string) error {
	if url == "" {
		return errNoItem
	}

	p.mu.Lock()
	p.halt()
	p.url = url
	p.start()
	st, h := p.stateLocked()
	p.mu.Unlock()

	notify(h, st)
	return nil
}

func (p *StreamPlayer) Play() error {
	p.mu.Lock()
	if p.url == "" {
		p.mu.Unlock()
		return errNoItem
	}
	p.playWhenReady = true
	if p.sink != nil {
		p.sink.setMuted(false)
	}
	st, h := p.stateLocked()
	p.mu.Unlock()

	notify(h, st)
	return nil
}

func (p *StreamPlayer) Pause() error {
	p.mu.Lock()
	p.playWhenReady = false
	if p.sink != nil {
		p.sink.setMuted(true)
	}
	st, h := p.stateLocked()
	p.mu.Unlock()

	notify(h, st)
	return nil
}

// Stop disconnects but keeps the item, which must be loaded again to play.
func (p *StreamPlayer) Stop() error {
	p.mu.Lock()
	p.halt()
	p.playWhenReady = false
	p.readiness = ReadinessIdle
	p.lastErr = nil
	if p.url != "" {
		p.status = ItemEmpty
	}
	st, h := p.stateLocked()
	p.mu.Unlock()

	notify(h, st)
	return nil
}

func (p *StreamPlayer) Unload() error {
	p.mu.Lock()
	p.halt()
	p.url = ""
	p.status = ItemNone
	p.readiness = ReadinessIdle
	p.playWhenReady = false
	p.lastErr = nil
	st, h := p.stateLocked()
	p.mu.Unlock()

	notify(h, st)
	return nil
}

// Close unloads the item, waits for the stream connection to finish and
// closes the audio output.
func (p *StreamPlayer) Close() error {
	err := p.Unload()
	p.copyWg.Wait()

	if c, ok := p.out.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

// start must be called with p.mu held.
func (p *StreamPlayer) start() {
	p.session++
	id := p.session

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.status = ItemLoading
	p.readiness = ReadinessBuffering
	p.lastErr = nil

	sink := newAudioSink(p.out, p.cfg.SyncWindow, func() { p.ready(id) }, p.logger)
	sink.muted = !p.playWhenReady
	p.sink = sink

	p.copyWg.Add(1)
	go p.run(ctx, id, p.url, sink)
}

// halt abandons the current connection. Reports from it are ignored from now
// on. Must be called with p.mu held.
func (p *StreamPlayer) halt() {
	p.session++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.sink != nil {
		_ = p.sink.Close()
		p.sink = nil
	}
}

func (p *StreamPlayer) run(ctx context.Context, id uint64, url string, sink *audioSink) {
	defer p.copyWg.Done()

	stream, err := shoutcast.Open(ctx, url, shoutcast.Options{
		DialTimeout:   p.cfg.DialTimeout,
		HeaderTimeout: p.cfg.HeaderTimeout,
		UserAgent:     p.cfg.UserAgent,
		Logger:        p.logger,
	})
	if err != nil {
		if ctx.Err() == nil {
			p.fail(id, err)
		}
		return
	}
	defer stream.Close()

	p.logger.Info("connected", "name", stream.Name, "genre", stream.Genre, "bitrate", stream.Bitrate)
	stream.MetadataCallbackFunc = func(m *shoutcast.Metadata) {
		p.metadata(id, m)
	}

	n, err := io.Copy(sink, stream)
	if ctx.Err() != nil {
		p.logger.Debug("stream closed", "received", humanize.IBytes(uint64(n)))
		return
	}
	if err != nil {
		p.logger.Error("error copying stream", "err", err, "received", humanize.IBytes(uint64(n)))
		p.fail(id, err)
		return
	}

	p.logger.Info("stream ended", "received", humanize.IBytes(uint64(n)))
	p.ended(id)
}

func (p *StreamPlayer) ready(id uint64) {
	p.mu.Lock()
	if id != p.session {
		p.mu.Unlock()
		return
	}
	p.status = ItemReady
	p.readiness = ReadinessReady
	st, h := p.stateLocked()
	p.mu.Unlock()

	notify(h, st)
}

func (p *StreamPlayer) fail(id uint64, err error) {
	p.mu.Lock()
	if id != p.session {
		p.mu.Unlock()
		return
	}
	p.halt()
	p.status = ItemFailed
	p.readiness = ReadinessIdle
	p.lastErr = err
	st, h := p.stateLocked()
	p.mu.Unlock()

	metricPlayerErrors.Inc()
	if h.OnError != nil {
		h.OnError(err)
	}
	notify(h, st)
}

func (p *StreamPlayer) ended(id uint64) {
	p.mu.Lock()
	if id != p.session {
		p.mu.Unlock()
		return
	}
	p.halt()
	p.status = ItemEmpty
	p.readiness = ReadinessEnded
	st, h := p.stateLocked()
	p.mu.Unlock()

	notify(h, st)
}

func (p *StreamPlayer) metadata(id uint64, m *shoutcast.Metadata) {
	p.mu.Lock()
	current := id == p.session
	h := p.handlers
	p.mu.Unlock()

	if !current || h.OnMetadata == nil {
		return
	}
	h.OnMetadata(StreamMetadata{Title: m.StreamTitle, URL: m.StreamURL})
}

func (p *StreamPlayer) stateLocked() (PlayerState, Handlers) {
	return PlayerState{
		Readiness:     p.readiness,
		PlayWhenReady: p.playWhenReady,
		Err:           p.lastErr,
	}, p.handlers
}

func notify(h Handlers, st PlayerState) {
	if h.OnStateChanged != nil {
		h.OnStateChanged(st)
	}
}
