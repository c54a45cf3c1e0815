package shoutcast

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metaBlock(s string) []byte {
	n := (len(s) + 15) / 16
	block := make([]byte, 1+n*16)
	block[0] = byte(n)
	copy(block[1:], s)
	return block
}

func icyBody(metaint int) []byte {
	var b bytes.Buffer
	b.WriteString(strings.Repeat("A", metaint))
	b.Write(metaBlock("StreamTitle='Miles Davis - So What';StreamUrl='http://img/1.jpg';"))
	b.WriteString(strings.Repeat("B", metaint))
	b.WriteByte(0) // unchanged metadata
	b.WriteString(strings.Repeat("C", metaint))
	b.Write(metaBlock("StreamTitle='Miles Davis - So What';StreamUrl='http://img/1.jpg';"))
	b.WriteString(strings.Repeat("D", metaint))
	b.Write(metaBlock("StreamTitle='JingleOnly';"))
	b.WriteString("EEE")
	return b.Bytes()
}

func TestStreamStripsMetadata(t *testing.T) {
	const metaint = 16
	s := newStream(io.NopCloser(bytes.NewReader(icyBody(metaint))), metaint)

	var seen []*Metadata
	s.MetadataCallbackFunc = func(m *Metadata) { seen = append(seen, m) }

	// Small reads exercise boundaries that fall inside a caller buffer.
	var audio bytes.Buffer
	buf := make([]byte, 5)
	for {
		n, err := s.Read(buf)
		audio.Write(buf[:n])
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	want := strings.Repeat("A", metaint) + strings.Repeat("B", metaint) +
		strings.Repeat("C", metaint) + strings.Repeat("D", metaint) + "EEE"
	assert.Equal(t, want, audio.String())

	require.Len(t, seen, 2, "repeated blocks must not be reported twice")
	assert.Equal(t, "Miles Davis - So What", seen[0].StreamTitle)
	assert.Equal(t, "http://img/1.jpg", seen[0].StreamURL)
	assert.Equal(t, "JingleOnly", seen[1].StreamTitle)
	assert.Equal(t, "JingleOnly", s.Metadata().StreamTitle)
}

func TestStreamTruncatedMetadata(t *testing.T) {
	body := append([]byte("AAAA"), 2, 'S', 't')
	s := newStream(io.NopCloser(bytes.NewReader(body)), 4)

	_, err := io.ReadAll(s)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestStreamWithoutMetaint(t *testing.T) {
	s := newStream(io.NopCloser(strings.NewReader("plain audio")), 0)

	b, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "plain audio", string(b))
}

func TestOpen(t *testing.T) {
	const metaint = 16
	body := icyBody(metaint)

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("icy-metadata") == "1" {
			w.Header().Set("icy-metaint", fmt.Sprint(metaint))
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("icy-name", "Jazz FM")
		w.Header().Set("icy-br", "128,128")
		_, _ = w.Write(body)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/listen.pls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/x-scpls")
		fmt.Fprintf(w, "[playlist]\nNumberOfEntries=1\nFile1=%s/stream\n", srv.URL)
	})

	for _, path := range []string{"/stream", "/listen.pls"} {
		t.Run(path, func(t *testing.T) {
			s, err := Open(context.Background(), srv.URL+path, Options{})
			require.NoError(t, err)
			defer s.Close()

			assert.Equal(t, "Jazz FM", s.Name)
			assert.Equal(t, 128, s.Bitrate)

			var titles []string
			s.MetadataCallbackFunc = func(m *Metadata) { titles = append(titles, m.StreamTitle) }

			_, err = io.Copy(io.Discard, s)
			require.NoError(t, err)
			assert.Equal(t, []string{"Miles Davis - So What", "JingleOnly"}, titles)
		})
	}
}

func TestCloseReleasesConnections(t *testing.T) {
	var (
		mu    sync.Mutex
		conns = map[net.Conn]struct{}{}
	)

	mux := http.NewServeMux()
	srv := httptest.NewUnstartedServer(mux)
	srv.Config.ConnState = func(c net.Conn, st http.ConnState) {
		mu.Lock()
		defer mu.Unlock()
		switch st {
		case http.StateNew:
			conns[c] = struct{}{}
		case http.StateClosed, http.StateHijacked:
			delete(conns, c)
		}
	}
	srv.Start()
	defer srv.Close()

	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("audio"))
	})
	mux.HandleFunc("/listen.pls", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "[playlist]\nNumberOfEntries=1\nFile1=%s/stream\n", srv.URL)
	})

	s, err := Open(context.Background(), srv.URL+"/listen.pls", Options{})
	require.NoError(t, err)
	_, err = io.Copy(io.Discard, s)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(conns) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOpenBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Open(context.Background(), srv.URL, Options{})
	assert.Error(t, err)
}

func TestParseM3U(t *testing.T) {
	url, err := parseM3U(strings.NewReader("#EXTM3U\n#EXTINF:-1,Jazz\n\nhttp://x/stream.mp3\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://x/stream.mp3", url)

	_, err = parseM3U(strings.NewReader("#EXTM3U\n"))
	assert.Error(t, err)
}
