// Package downloads runs one file transfer per request in the background and
// announces each finished transfer on the event hub, keyed by an opaque
// handle. It knows nothing about splits or stages.
package downloads

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitfetch/internal/events"
	"github.com/tanq16/splitfetch/internal/utils"
	"gopkg.in/tomb.v2"
)

var ErrClosed = errors.New("download manager is closed")

type Handle string

type Request struct {
	URL      string
	Dir      string
	FileName string
}

// Completion is the payload published on events.DownloadCompleteTopic.
type Completion struct {
	Handle Handle
	URL    string
	Path   string
	Size   int64
	Err    error
}

type Publisher interface {
	Publish(topic string, data any) func()
}

// Backend moves the bytes behind one URL scheme into dest.
type Backend interface {
	// progress receives cumulative bytes and the expected total (-1 when
	// unknown).
	Fetch(ctx context.Context, link, dest string, progress func(downloaded, total int64)) (int64, error)
}

type Manager struct {
	hub          Publisher
	backends     map[string]Backend
	progressFunc func(h Handle, downloaded, total int64)

	mu     sync.Mutex
	closed bool
	tomb   tomb.Tomb
}

func NewManager(hub Publisher) *Manager {
	m := &Manager{
		hub:      hub,
		backends: make(map[string]Backend),
	}
	// keeps the tomb alive between sequential downloads
	m.tomb.Go(func() error {
		<-m.tomb.Dying()
		return nil
	})
	return m
}

// Register binds a backend to a URL scheme.
func (m *Manager) Register(scheme string, b Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backends[scheme] = b
}

// OnProgress installs a callback fed with byte counts of running transfers.
func (m *Manager) OnProgress(fn func(h Handle, downloaded, total int64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progressFunc = fn
}

// Enqueue starts the transfer in the background and returns its handle
// without waiting for any bytes to move.
func (m *Manager) Enqueue(ctx context.Context, req Request) (Handle, error) {
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %v", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	backend, ok := m.backends[parsed.Scheme]
	if !ok {
		return "", fmt.Errorf("unsupported scheme: %s", parsed.Scheme)
	}
	if req.FileName == "" {
		req.FileName = utils.FileNameFromURL(req.URL)
	}
	handle := Handle(uuid.NewString())
	progress := m.progressFunc
	runCtx := m.tomb.Context(ctx)
	m.tomb.Go(func() error {
		m.run(runCtx, handle, req, backend, progress)
		return nil
	})
	log.Debug().Str("op", "downloads/manager").Msgf("enqueued %s as %s", req.URL, handle)
	return handle, nil
}

func (m *Manager) run(ctx context.Context, handle Handle, req Request, backend Backend, progress func(Handle, int64, int64)) {
	dest := filepath.Join(req.Dir, req.FileName)
	size, err := m.transfer(ctx, req.URL, dest, backend, func(downloaded, total int64) {
		if progress != nil {
			progress(handle, downloaded, total)
		}
	})
	if err != nil {
		err = fmt.Errorf("cannot download %q: %w", req.URL, err)
		log.Error().Str("op", "downloads/manager").Err(err).Msgf("download %s failed", handle)
	} else {
		log.Info().Str("op", "downloads/manager").Msgf("downloaded %s (%s)", dest, utils.FormatBytes(uint64(size)))
	}
	// interrupted downloads are not announced
	select {
	case <-m.tomb.Dying():
		return
	default:
	}
	m.hub.Publish(events.DownloadCompleteTopic, Completion{
		Handle: handle,
		URL:    req.URL,
		Path:   dest,
		Size:   size,
		Err:    err,
	})
}

func (m *Manager) transfer(ctx context.Context, link, dest string, backend Backend, progress func(downloaded, total int64)) (int64, error) {
	tempPath := utils.TempPath(filepath.Dir(dest), filepath.Base(dest))
	if err := os.MkdirAll(filepath.Dir(tempPath), 0755); err != nil {
		return 0, fmt.Errorf("error creating temp directory: %v", err)
	}
	size, err := backend.Fetch(ctx, link, tempPath, progress)
	if err != nil {
		os.Remove(tempPath)
		return 0, err
	}
	progress(size, size)
	if err := os.Rename(tempPath, dest); err != nil {
		return 0, fmt.Errorf("error renaming (finalizing) output file: %v", err)
	}
	return size, nil
}

// Close stops accepting requests, interrupts running transfers and waits for
// their goroutines to exit.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.tomb.Kill(nil)
	return m.tomb.Wait()
}
