package nowplaying

import (
	"sync"
)

// Commands are the navigation buttons the now-playing surface advertises.
type Commands struct {
	Next     bool `json:"next"`
	Previous bool `json:"previous"`
}

// Surface is the system now-playing display. Each SetNowPlaying call
// replaces the whole entry.
type Surface interface {
	SetNowPlaying(Info)
	Clear()
	SetCommands(Commands)
	Commands() Commands
}

// MemorySurface keeps the now-playing entry in process so it can be served
// to clients.
type MemorySurface struct {
	mu       sync.RWMutex
	info     *Info
	commands Commands
	updates  uint64
}

var _ Surface = (*MemorySurface)(nil)

func NewMemorySurface() *MemorySurface {
	return &MemorySurface{}
}

func (s *MemorySurface) SetNowPlaying(info Info) {
	info = info.clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = &info
	s.updates++
}

func (s *MemorySurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = nil
	s.updates++
}

func (s *MemorySurface) SetCommands(c Commands) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = c
}

func (s *MemorySurface) Commands() Commands {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commands
}

// NowPlaying returns the current entry, or false when the surface is clear.
func (s *MemorySurface) NowPlaying() (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info == nil {
		return Info{}, false
	}
	return s.info.clone(), true
}

// Updates counts SetNowPlaying and Clear calls.
func (s *MemorySurface) Updates() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}
