package gelf

import (
	"encoding/json"
	"net"
	"testing"
	"time"
)

func TestWriterSendsMessage(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()

	w, err := New(pc.LocalAddr().String(), "formdeck")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer w.Close()
	w.now = func() time.Time { return time.Unix(1700000000, 0) }

	line := "2024/01/02 15:04:05 warning: webhook slow\n"
	if n, err := w.Write([]byte(line)); err != nil || n != len(line) {
		t.Fatalf("write: %d %v", n, err)
	}
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got message
	if err := json.Unmarshal(buf[:n], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ShortMessage != "warning: webhook slow" || got.Level != levelWarning || got.Service != "formdeck" {
		t.Fatalf("unexpected message %+v", got)
	}
	if got.Timestamp != 1700000000 {
		t.Fatalf("timestamp %v", got.Timestamp)
	}
}

func TestLevel(t *testing.T) {
	cases := map[string]int{
		"GET /v0/forms 200 3ms":           levelInfo,
		"webhook: deliver failed: error x": levelError,
		"Warning: legacy header":           levelWarning,
		"PANIC: boom":                      levelError,
	}
	for msg, want := range cases {
		if got := level(msg); got != want {
			t.Errorf("level(%q) = %d, want %d", msg, got, want)
		}
	}
}
