// Package fetcher drives one split download session: arch, theme, language
// and, for non-English languages, the English fallback split, strictly one at
// a time, then hands the set to the installer matching the configured
// variant.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitfetch/internal/device"
	"github.com/tanq16/splitfetch/internal/downloads"
	"github.com/tanq16/splitfetch/internal/events"
	"github.com/tanq16/splitfetch/internal/installer"
	"github.com/tanq16/splitfetch/internal/prefs"
	"github.com/tanq16/splitfetch/internal/utils"
)

var (
	ErrAlreadyStarted = errors.New("fetch session already started")
	ErrClosed         = errors.New("fetch session closed")
	ErrNotRunning     = errors.New("fetch session not running")
)

type PrefSource interface {
	Read() prefs.Values
}

type VersionSource interface {
	Version(ctx context.Context, base string) (string, error)
}

type Downloader interface {
	Enqueue(ctx context.Context, req downloads.Request) (downloads.Handle, error)
}

type Hub interface {
	Publish(topic string, data any) func()
	Subscribe(topic string, handler func(topic string, data any)) func()
}

type Config struct {
	Prefs            PrefSource
	Metadata         VersionSource
	ABIs             device.ABISource
	Downloads        Downloader
	Hub              Hub
	RootInstaller    installer.Installer
	NonRootInstaller installer.Installer
	// Dir receives the splits and the session manifest.
	Dir string
}

func (c Config) validate() error {
	switch {
	case c.Prefs == nil:
		return errors.New("missing preference source")
	case c.Metadata == nil:
		return errors.New("missing metadata source")
	case c.ABIs == nil:
		return errors.New("missing ABI source")
	case c.Downloads == nil:
		return errors.New("missing downloader")
	case c.Hub == nil:
		return errors.New("missing event hub")
	case c.RootInstaller == nil || c.NonRootInstaller == nil:
		return errors.New("missing installer")
	case c.Dir == "":
		return errors.New("missing output directory")
	}
	return nil
}

// StageEvent is published on events.StageTopic.
type StageEvent struct {
	Stage  Stage
	URL    string
	Handle downloads.Handle
}

// ReadyEvent is published once on events.AssetReadyTopic.
type ReadyEvent struct {
	Dir       string
	Snapshot  Snapshot
	Installer string
}

// FailedEvent is published once on events.AssetFailedTopic. Stage is
// StateIdle when the session failed before requesting any split.
type FailedEvent struct {
	Stage Stage
	Err   error
}

type Fetcher struct {
	cfg Config

	mu       sync.Mutex
	started  bool
	ready    bool
	closed   bool
	ctx      context.Context
	snapshot Snapshot
	stage    Stage
	handle   downloads.Handle
	splits   []installer.Split
	unsub    func()
	err      error

	done     chan struct{}
	doneOnce sync.Once
}

func New(cfg Config) (*Fetcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Fetcher{
		cfg:   cfg,
		stage: StateIdle,
		done:  make(chan struct{}),
	}, nil
}

// Start subscribes to download completions, snapshots the configuration and
// requests the arch split. It returns once that request is issued; the rest
// of the session runs off completion events. Any error leaves the session
// failed and unsubscribed.
func (f *Fetcher) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return ErrAlreadyStarted
	}
	f.started = true
	f.ctx = ctx
	// subscribe before the first request so its completion can't be missed
	f.unsub = f.cfg.Hub.Subscribe(events.DownloadCompleteTopic, f.onDownloadEvent)
	f.mu.Unlock()

	if err := f.begin(ctx); err != nil {
		f.fail(err)
		return err
	}
	return nil
}

// begin resolves the snapshot without holding f.mu, then takes it only to
// publish the snapshot and request arch.
func (f *Fetcher) begin(ctx context.Context) error {
	snap := SnapshotFromValues(f.cfg.Prefs.Read())
	version, err := f.cfg.Metadata.Version(ctx, snap.BaseURL)
	if err != nil {
		return fmt.Errorf("error fetching version: %w", err)
	}
	snap.Version = version
	abis, err := f.cfg.ABIs.SupportedABIs(ctx)
	if err != nil {
		return fmt.Errorf("error reading device ABIs: %w", err)
	}
	snap.ABI = SelectABI(abis)
	log.Info().Str("op", "fetcher/fetcher").Msgf("session v%s %s lang=%s theme=%s abi=%s from %s",
		snap.Version, snap.Variant, snap.Language, snap.Theme, snap.ABI, snap.BaseURL)
	if err := os.MkdirAll(f.cfg.Dir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.snapshot = snap
	f.ready = true
	return f.requestLocked(ctx, StageArch)
}

// RequestStage issues the download for stage and makes it the tracked one.
func (f *Fetcher) RequestStage(ctx context.Context, stage Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requestLocked(ctx, stage)
}

// requestLocked holds f.mu across Enqueue so a completion that races the
// return of the handle still finds it recorded.
func (f *Fetcher) requestLocked(ctx context.Context, stage Stage) error {
	if !f.ready || f.closed || f.stage == StateDone || f.stage == StateFailed {
		return ErrNotRunning
	}
	link, err := StageURL(f.snapshot, stage)
	if err != nil {
		return err
	}
	req := Request{
		Stage:    stage,
		URL:      link,
		Dir:      f.cfg.Dir,
		FileName: utils.FileNameFromURL(link),
	}
	handle, err := f.cfg.Downloads.Enqueue(ctx, downloads.Request{URL: req.URL, Dir: req.Dir, FileName: req.FileName})
	if err != nil {
		return fmt.Errorf("error requesting %s split: %w", stage, err)
	}
	f.handle = handle
	f.stage = stage
	f.splits = append(f.splits, installer.Split{Stage: stage.String(), File: req.FileName})
	log.Info().Str("op", "fetcher/fetcher").Msgf("requested %s split %s", stage, link)
	f.cfg.Hub.Publish(events.StageTopic, StageEvent{Stage: stage, URL: link, Handle: handle})
	return nil
}

func (f *Fetcher) onDownloadEvent(_ string, data any) {
	comp, ok := data.(downloads.Completion)
	if !ok {
		return
	}
	if comp.Err != nil {
		f.OnDownloadFailed(comp.Handle, comp.Err)
		return
	}
	f.mu.Lock()
	ctx := f.ctx
	f.mu.Unlock()
	if err := f.OnDownloadCompleted(ctx, comp.Handle); err != nil {
		log.Error().Str("op", "fetcher/fetcher").Err(err).Msg("session stopped")
	}
}

// OnDownloadCompleted advances the session when handle is the tracked
// download and ignores it otherwise.
func (f *Fetcher) OnDownloadCompleted(ctx context.Context, handle downloads.Handle) error {
	f.mu.Lock()
	if f.handle == "" || handle != f.handle {
		f.mu.Unlock()
		log.Debug().Str("op", "fetcher/fetcher").Msgf("ignoring completion of %s", handle)
		return nil
	}
	var err error
	switch f.stage {
	case StageArch:
		err = f.requestLocked(ctx, StageTheme)
	case StageTheme:
		err = f.requestLocked(ctx, StageLang)
	case StageLang:
		if f.snapshot.Language != "en" {
			err = f.requestLocked(ctx, StageEnLang)
			break
		}
		fallthrough
	case StageEnLang:
		manifest, merr := f.completeLocked()
		f.mu.Unlock()
		if merr != nil {
			f.fail(merr)
			return merr
		}
		return f.handOff(ctx, manifest)
	default:
		err = fmt.Errorf("completion in state %s", f.stage)
	}
	f.mu.Unlock()
	if err != nil {
		f.fail(err)
	}
	return err
}

// OnDownloadFailed stops the session when handle is the tracked download.
func (f *Fetcher) OnDownloadFailed(handle downloads.Handle, err error) {
	f.mu.Lock()
	tracked := f.handle != "" && handle == f.handle
	f.mu.Unlock()
	if !tracked {
		return
	}
	f.fail(err)
}

// completeLocked marks the session done and writes the manifest. Clearing the
// handle makes any later completion a no-op.
func (f *Fetcher) completeLocked() (*installer.Manifest, error) {
	f.handle = ""
	m := &installer.Manifest{
		Version:  f.snapshot.Version,
		Variant:  string(f.snapshot.Variant),
		ABI:      f.snapshot.ABI,
		Language: f.snapshot.Language,
		Theme:    f.snapshot.Theme,
	}
	for _, s := range f.splits {
		if info, err := os.Stat(filepath.Join(f.cfg.Dir, s.File)); err == nil {
			s.Size = info.Size()
		}
		m.Splits = append(m.Splits, s)
	}
	if err := installer.WriteManifest(f.cfg.Dir, m); err != nil {
		return nil, err
	}
	f.stage = StateDone
	return m, nil
}

func (f *Fetcher) handOff(ctx context.Context, m *installer.Manifest) error {
	inst := f.installerFor(f.snapshot.Variant)
	f.unsubscribe()
	f.cfg.Hub.Publish(events.AssetReadyTopic, ReadyEvent{Dir: f.cfg.Dir, Snapshot: f.snapshot, Installer: inst.Name()})
	log.Info().Str("op", "fetcher/fetcher").Msgf("%d splits ready, starting %s", len(m.Splits), inst.Name())
	err := inst.Install(ctx, f.cfg.Dir)
	if err != nil {
		err = fmt.Errorf("%s: %w", inst.Name(), err)
	}
	f.finish(err)
	return err
}

func (f *Fetcher) installerFor(variant prefs.Variant) installer.Installer {
	if variant == prefs.VariantRoot {
		return f.cfg.RootInstaller
	}
	return f.cfg.NonRootInstaller
}

func (f *Fetcher) fail(err error) {
	f.mu.Lock()
	if f.stage == StateFailed || f.stage == StateDone {
		f.mu.Unlock()
		return
	}
	stage := f.stage
	f.stage = StateFailed
	f.handle = ""
	f.mu.Unlock()
	f.unsubscribe()
	log.Error().Str("op", "fetcher/fetcher").Err(err).Msgf("session failed in %s", stage)
	f.cfg.Hub.Publish(events.AssetFailedTopic, FailedEvent{Stage: stage, Err: err})
	f.finish(err)
}

func (f *Fetcher) finish(err error) {
	f.doneOnce.Do(func() {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		close(f.done)
	})
}

func (f *Fetcher) unsubscribe() {
	f.mu.Lock()
	unsub := f.unsub
	f.unsub = nil
	f.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Close drops the completion subscription and makes the fetcher inert.
// Downloads already in flight run to the end with no further effect.
func (f *Fetcher) Close() {
	f.mu.Lock()
	f.closed = true
	f.handle = ""
	f.mu.Unlock()
	f.unsubscribe()
	f.finish(ErrClosed)
}

func (f *Fetcher) Done() <-chan struct{} {
	return f.done
}

// Err returns the session outcome once Done is closed.
func (f *Fetcher) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *Fetcher) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fetcher) State() Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage
}

func (f *Fetcher) Handle() downloads.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handle
}

func (f *Fetcher) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}
