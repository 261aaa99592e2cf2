// Package gelf ships log lines to a Graylog input over UDP.
package gelf

import (
	"encoding/json"
	"net"
	"os"
	"strings"
	"time"
)

const (
	levelError   = 3
	levelWarning = 4
	levelInfo    = 6
)

// Writer sends one GELF message per Write. It is meant to sit behind
// io.MultiWriter next to the regular log output.
type Writer struct {
	conn     net.Conn
	hostname string
	service  string
	now      func() time.Time
}

// New dials addr (host:port) over UDP.
func New(addr, service string) (*Writer, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "formdeck"
	}
	return &Writer{conn: conn, hostname: hostname, service: service, now: time.Now}, nil
}

type message struct {
	Version      string  `json:"version"`
	Host         string  `json:"host"`
	ShortMessage string  `json:"short_message"`
	Timestamp    float64 `json:"timestamp"`
	Level        int     `json:"level"`
	Service      string  `json:"_service,omitempty"`
}

// Write never fails the caller; delivery is best effort.
func (w *Writer) Write(p []byte) (int, error) {
	payload, err := json.Marshal(w.message(string(p)))
	if err != nil {
		return len(p), nil
	}
	_, _ = w.conn.Write(payload)
	return len(p), nil
}

func (w *Writer) message(line string) message {
	short := stripLogPrefix(strings.TrimRight(line, "\n"))
	return message{
		Version:      "1.1",
		Host:         w.hostname,
		ShortMessage: short,
		Timestamp:    float64(w.now().UnixNano()) / 1e9,
		Level:        level(short),
		Service:      w.service,
	}
}

// stripLogPrefix drops the "2006/01/02 15:04:05 " prefix of the standard logger.
func stripLogPrefix(msg string) string {
	if len(msg) > 20 && msg[4] == '/' && msg[7] == '/' && msg[10] == ' ' && msg[13] == ':' {
		return msg[20:]
	}
	return msg
}

func level(msg string) int {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "PANIC") || strings.Contains(lower, "fatal") || strings.Contains(lower, "error"):
		return levelError
	case strings.HasPrefix(lower, "warning"):
		return levelWarning
	default:
		return levelInfo
	}
}

func (w *Writer) Close() error {
	return w.conn.Close()
}
