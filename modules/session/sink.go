package session

import (
	"io"
	"log/slog"
	"sync"
)

// audioSink is the end of the stream copy. Bytes before the first frame sync
// are dropped, the first sync reports the item ready, and audio is forwarded
// to out only while unmuted.
type audioSink struct {
	sync.Mutex
	out     io.Writer
	window  int
	onReady func()
	logger  *slog.Logger

	seen   int
	lastFF bool
	synced bool
	muted  bool
	closed bool
}

func newAudioSink(out io.Writer, window int, onReady func(), logger *slog.Logger) *audioSink {
	if out == nil {
		out = io.Discard
	}
	return &audioSink{
		out:     out,
		window:  window,
		onReady: onReady,
		logger:  logger,
	}
}

func (s *audioSink) Write(p []byte) (n int, err error) {
	s.Lock()

	if s.closed {
		s.Unlock()
		return 0, io.ErrClosedPipe
	}

	metricAudioBytes.Add(float64(len(p)))

	ready := false
	audio := p
	if !s.synced {
		audio, ready = s.sync(p)
	}

	if len(audio) > 0 && !s.muted {
		_, err = s.out.Write(audio)
	}
	s.Unlock()

	if ready && s.onReady != nil {
		s.onReady()
	}
	if err != nil {
		return 0, err
	}

	return len(p), nil
}

// sync looks for the first frame, including one split across writes. It
// returns the audio to forward and whether the stream just became ready.
func (s *audioSink) sync(p []byte) ([]byte, bool) {
	if len(p) == 0 {
		return nil, false
	}

	if s.lastFF && isFrameSync(0xFF, p[0]) {
		s.synced = true
		return append([]byte{0xFF}, p...), true
	}

	if pos := findFrameSync(p); pos >= 0 {
		s.synced = true
		return p[pos:], true
	}

	s.seen += len(p)
	s.lastFF = p[len(p)-1] == 0xFF
	if s.seen > s.window {
		s.logger.Warn("no MPEG frame sync found, playing anyway", "inspected", s.seen)
		s.synced = true
		return p, true
	}

	return nil, false
}

func (s *audioSink) setMuted(muted bool) {
	s.Lock()
	defer s.Unlock()
	s.muted = muted
}

func (s *audioSink) Close() error {
	s.Lock()
	defer s.Unlock()
	s.closed = true
	return nil
}
