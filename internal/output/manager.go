package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/splitfetch/internal/downloads"
	"github.com/tanq16/splitfetch/internal/events"
	"github.com/tanq16/splitfetch/internal/fetcher"
	"github.com/tanq16/splitfetch/internal/utils"
)

type StageOutput struct {
	ID          int
	Stage       string
	URL         string
	Handle      downloads.Handle
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
}

type ErrorReport struct {
	Stage string
	Error error
	Time  time.Time
}

// Manager renders one line per split stage. On a terminal it redraws in
// place every tick, otherwise it only prints the final summary.
type Manager struct {
	out         io.Writer
	interactive bool
	outputs     map[int]*StageOutput
	byHandle    map[downloads.Handle]int
	mutex       sync.RWMutex
	numLines    int
	errors      []ErrorReport
	result      string
	doneCh      chan struct{}
	displayTick time.Duration
	stageCount  int
	displayWg   sync.WaitGroup
}

func NewManager(out io.Writer, interactive bool) *Manager {
	return &Manager{
		out:         out,
		interactive: interactive,
		outputs:     make(map[int]*StageOutput),
		byHandle:    make(map[downloads.Handle]int),
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

func (m *Manager) RegisterStage(stage, url string, handle downloads.Handle) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.stageCount++
	now := time.Now()
	m.outputs[m.stageCount] = &StageOutput{
		ID:          m.stageCount,
		Stage:       stage,
		URL:         url,
		Handle:      handle,
		Status:      "pending",
		Message:     fmt.Sprintf("Downloading %s split %s", stage, utils.FileNameFromURL(url)),
		StartTime:   now,
		LastUpdated: now,
	}
	if handle != "" {
		m.byHandle[handle] = m.stageCount
	}
	return m.stageCount
}

func (m *Manager) lookup(handle downloads.Handle) (*StageOutput, bool) {
	id, ok := m.byHandle[handle]
	if !ok {
		return nil, false
	}
	info, ok := m.outputs[id]
	return info, ok
}

func (m *Manager) Complete(handle downloads.Handle, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.lookup(handle); exists {
		info.StreamLines = nil
		if message == "" {
			message = fmt.Sprintf("Completed %s split", info.Stage)
		}
		info.Message = message
		info.Complete = true
		info.Status = "success"
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) ReportError(handle downloads.Handle, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.lookup(handle); exists {
		info.Complete = true
		info.Status = "error"
		info.Error = err
		info.Message = fmt.Sprintf("Failed %s split", info.Stage)
		info.LastUpdated = time.Now()
		m.errors = append(m.errors, ErrorReport{Stage: info.Stage, Error: err, Time: time.Now()})
	}
}

// Progress replaces the stream of the stage behind handle with a progress bar.
func (m *Manager) Progress(handle downloads.Handle, downloaded, total int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.lookup(handle); exists {
		elapsed := time.Since(info.StartTime).Seconds()
		text := utils.FormatBytes(uint64(max(0, downloaded)))
		if total > 0 {
			text += " / " + utils.FormatBytes(uint64(total))
		}
		info.StreamLines = []string{fmt.Sprintf("%s%s %s %s", ProgressBar(downloaded, total, 30), debugStyle.Render(text),
			StyleSymbols["bullet"], debugStyle.Render(FormatSpeed(downloaded, elapsed)))}
		info.LastUpdated = time.Now()
	}
}

// SetResult records the line shown under the summary, e.g. the installer
// outcome.
func (m *Manager) SetResult(text string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.result = text
}

func (m *Manager) Attach(hub *events.Hub) func() {
	unsubs := []func(){
		hub.Subscribe(events.StageTopic, func(_ string, data any) {
			if ev, ok := data.(fetcher.StageEvent); ok {
				m.RegisterStage(ev.Stage.String(), ev.URL, ev.Handle)
			}
		}),
		hub.Subscribe(events.DownloadCompleteTopic, func(_ string, data any) {
			comp, ok := data.(downloads.Completion)
			if !ok {
				return
			}
			if comp.Err != nil {
				m.ReportError(comp.Handle, comp.Err)
				return
			}
			m.Complete(comp.Handle, fmt.Sprintf("Downloaded %s (%s)", utils.FileNameFromURL(comp.URL), utils.FormatBytes(uint64(comp.Size))))
		}),
		hub.Subscribe(events.AssetReadyTopic, func(_ string, data any) {
			if ev, ok := data.(fetcher.ReadyEvent); ok {
				m.SetResult(fmt.Sprintf("Splits for v%s ready in %s %s %s", ev.Snapshot.Version, ev.Dir, StyleSymbols["arrow"], ev.Installer))
			}
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func (m *Manager) getStatusIndicator(status string) string {
	switch status {
	case "success":
		return successStyle.Render(StyleSymbols["pass"])
	case "error":
		return errorStyle.Render(StyleSymbols["fail"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func styleMessage(status, message string) string {
	switch status {
	case "success":
		return successStyle.Render(message)
	case "error":
		return errorStyle.Render(message)
	default:
		return pendingStyle.Render(message)
	}
}

func (m *Manager) sortedStages() []*StageOutput {
	stages := make([]*StageOutput, 0, len(m.outputs))
	for _, info := range m.outputs {
		stages = append(stages, info)
	}
	sort.Slice(stages, func(i, j int) bool {
		return stages[i].ID < stages[j].ID
	})
	return stages
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	availableLines := terminalHeight() - 3
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	lineCount := 0
	for _, info := range m.sortedStages() {
		if lineCount >= availableLines {
			break
		}
		elapsed := time.Since(info.StartTime).Round(time.Second)
		if info.Complete {
			elapsed = info.LastUpdated.Sub(info.StartTime).Round(time.Second)
		}
		fmt.Fprintf(m.out, "%s%s %s %s\n", strings.Repeat(" ", 2), m.getStatusIndicator(info.Status),
			debugStyle.Render(elapsed.String()), styleMessage(info.Status, info.Message))
		lineCount++
		for _, line := range info.StreamLines {
			if lineCount >= availableLines {
				break
			}
			fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), streamStyle.Render(line))
			lineCount++
		}
	}
	m.numLines = lineCount
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if m.interactive {
					m.updateDisplay()
				}
			case <-m.doneCh:
				if m.interactive {
					m.updateDisplay()
				}
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(fmt.Sprintf("Stage: %s", err.Stage)))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	var success, failures int
	for _, info := range m.outputs {
		switch info.Status {
		case "success":
			success++
		case "error":
			failures++
		}
	}
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+success2Style.Render(fmt.Sprintf("Completed %d of %d splits", success, len(m.outputs))))
	if failures > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Render(fmt.Sprintf("Failed %d of %d splits", failures, len(m.outputs))))
	}
	if m.result != "" {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+infoStyle.Render(m.result))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}
