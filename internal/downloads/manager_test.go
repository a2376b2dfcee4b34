package downloads

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/tanq16/splitfetch/internal/events"
	"github.com/tanq16/splitfetch/internal/utils"
)

func newTestManager(c *qt.C) (*Manager, <-chan Completion) {
	hub := events.NewHub()
	done := make(chan Completion, 4)
	unsub := hub.Subscribe(events.DownloadCompleteTopic, func(_ string, data any) {
		done <- data.(Completion)
	})
	c.Cleanup(unsub)
	m := NewManager(hub)
	m.Register("http", NewHTTPBackend(utils.NewSplitHTTPClient(utils.HTTPClientConfig{Timeout: 5 * time.Second})))
	c.Cleanup(func() { m.Close() })
	return m, done
}

func waitCompletion(c *qt.C, done <-chan Completion) Completion {
	select {
	case comp := <-done:
		return comp
	case <-time.After(5 * time.Second):
		c.Fatal("no completion published")
	}
	return Completion{}
}

func TestEnqueueDownloadsAndPublishes(t *testing.T) {
	c := qt.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("split-bytes"))
	}))
	defer server.Close()

	m, done := newTestManager(c)
	dir := t.TempDir()
	handle, err := m.Enqueue(context.Background(), Request{URL: server.URL + "/Arch/split_config.x86.apk", Dir: dir})
	c.Assert(err, qt.IsNil)
	c.Assert(handle, qt.Not(qt.Equals), Handle(""))

	comp := waitCompletion(c, done)
	c.Assert(comp.Err, qt.IsNil)
	c.Assert(comp.Handle, qt.Equals, handle)
	c.Assert(comp.Path, qt.Equals, filepath.Join(dir, "split_config.x86.apk"))
	c.Assert(comp.Size, qt.Equals, int64(len("split-bytes")))

	data, err := os.ReadFile(comp.Path)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "split-bytes")
	_, err = os.Stat(utils.TempPath(dir, "split_config.x86.apk"))
	c.Assert(os.IsNotExist(err), qt.IsTrue)
}

func TestEnqueueReportsHTTPFailure(t *testing.T) {
	c := qt.New(t)
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	m, done := newTestManager(c)
	dir := t.TempDir()
	handle, err := m.Enqueue(context.Background(), Request{URL: server.URL + "/missing.apk", Dir: dir})
	c.Assert(err, qt.IsNil)

	comp := waitCompletion(c, done)
	c.Assert(comp.Handle, qt.Equals, handle)
	c.Assert(comp.Err, qt.ErrorIs, ErrNotFound)
	_, err = os.Stat(filepath.Join(dir, "missing.apk"))
	c.Assert(os.IsNotExist(err), qt.IsTrue)
}

func TestEnqueueSequentialHandlesDiffer(t *testing.T) {
	c := qt.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path))
	}))
	defer server.Close()

	m, done := newTestManager(c)
	dir := t.TempDir()
	first, err := m.Enqueue(context.Background(), Request{URL: server.URL + "/a.apk", Dir: dir})
	c.Assert(err, qt.IsNil)
	c.Assert(waitCompletion(c, done).Handle, qt.Equals, first)

	second, err := m.Enqueue(context.Background(), Request{URL: server.URL + "/b.apk", Dir: dir})
	c.Assert(err, qt.IsNil)
	c.Assert(second, qt.Not(qt.Equals), first)
	c.Assert(waitCompletion(c, done).Handle, qt.Equals, second)
}

func TestEnqueueRejectsUnknownScheme(t *testing.T) {
	c := qt.New(t)
	m, _ := newTestManager(c)
	_, err := m.Enqueue(context.Background(), Request{URL: "ftp://example.com/a.apk", Dir: t.TempDir()})
	c.Assert(err, qt.ErrorMatches, "unsupported scheme: ftp")
}

func TestEnqueueAfterClose(t *testing.T) {
	c := qt.New(t)
	m, _ := newTestManager(c)
	c.Assert(m.Close(), qt.IsNil)
	_, err := m.Enqueue(context.Background(), Request{URL: "http://example.com/a.apk", Dir: t.TempDir()})
	c.Assert(err, qt.Equals, ErrClosed)
}

func TestParseS3URL(t *testing.T) {
	c := qt.New(t)
	bucket, key, err := ParseS3URL("s3://mirror/apks/v19/root/Theme/dark.apk")
	c.Assert(err, qt.IsNil)
	c.Assert(bucket, qt.Equals, "mirror")
	c.Assert(key, qt.Equals, "apks/v19/root/Theme/dark.apk")

	_, _, err = ParseS3URL("s3://mirror")
	c.Assert(err, qt.ErrorMatches, "invalid S3 URL format: .*")
}
