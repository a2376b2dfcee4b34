// Package events carries process-wide signals between the download manager,
// the split fetcher and whatever is rendering output.
package events

import (
	"github.com/juju/pubsub/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DownloadCompleteTopic is published by the download manager for every
	// finished transfer, successful or not. Subscribers filter by handle.
	DownloadCompleteTopic = "downloads.complete"
	// StageTopic is published by the split fetcher whenever it requests a
	// new stage.
	StageTopic = "splitfetch.stage"
	// AssetReadyTopic tells the host that every split is on disk.
	AssetReadyTopic = "VANCED_DOWNLOADED"
	// AssetFailedTopic tells the host that the session stopped on an error.
	AssetFailedTopic = "VANCED_DOWNLOAD_FAILED"
)

type Hub struct {
	hub *pubsub.SimpleHub
}

func NewHub() *Hub {
	return &Hub{
		hub: pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
			Logger: hubLogger{log.With().Str("op", "events/hub").Logger()},
		}),
	}
}

// Publish delivers data to every subscriber of topic. The returned func blocks
// until all subscribers have handled the event.
func (h *Hub) Publish(topic string, data any) func() {
	return h.hub.Publish(topic, data)
}

// Subscribe registers handler for topic and returns the unsubscribe func.
func (h *Hub) Subscribe(topic string, handler func(topic string, data any)) func() {
	return h.hub.Subscribe(topic, func(t string, d interface{}) {
		handler(t, d)
	})
}

type hubLogger struct {
	l zerolog.Logger
}

func (h hubLogger) Errorf(format string, values ...interface{}) {
	h.l.Error().Msgf(format, values...)
}

func (h hubLogger) Warningf(format string, values ...interface{}) {
	h.l.Warn().Msgf(format, values...)
}

func (h hubLogger) Infof(format string, values ...interface{}) {
	h.l.Info().Msgf(format, values...)
}

func (h hubLogger) Debugf(format string, values ...interface{}) {
	h.l.Debug().Msgf(format, values...)
}

func (h hubLogger) Tracef(format string, values ...interface{}) {
	h.l.Trace().Msgf(format, values...)
}
