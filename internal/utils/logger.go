package utils

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func InitLogger(debug bool) {
	SetLogLevel(debug)
	SetLogOutput(os.Stderr)
}

func SetLogLevel(debug bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func SetLogOutput(w io.Writer) {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.DateTime,
		NoColor:    w != os.Stderr,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// SetFileLog routes logs to LogFile so they don't fight the terminal display.
// Closing the returned file log puts the console writer back first, so late
// log lines never hit a closed file.
func SetFileLog() (io.Closer, error) {
	f, err := os.OpenFile(LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	SetLogOutput(f)
	return fileLog{f}, nil
}

type fileLog struct {
	f *os.File
}

func (l fileLog) Close() error {
	SetLogOutput(os.Stderr)
	return l.f.Close()
}
