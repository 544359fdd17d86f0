package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/services"
)

func newTestDahua(t *testing.T, handler http.HandlerFunc) *Dahua {
	t.Helper()
	return newTestDahuaTimeout(t, 5, handler)
}

func newTestDahuaTimeout(t *testing.T, seconds int, handler http.HandlerFunc) *Dahua {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewDahua(config.Camera{
		Type:           KindDahua,
		DeviceIP:       server.URL,
		Username:       "admin",
		Password:       "secret",
		Channel:        1,
		RequestTimeout: seconds,
	}, nil)
}

// trickle writes chunks with a pause before each, flushing as it goes, and
// gives up once the client has gone away.
func trickle(w http.ResponseWriter, r *http.Request, chunks []string, pause time.Duration) {
	flusher, _ := w.(http.Flusher)
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}
	for _, chunk := range chunks {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(pause):
		}
		fmt.Fprint(w, chunk)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func TestParseFileListLineFormat(t *testing.T) {
	body := strings.Join([]string{
		"path=/mnt/sd/2024-05-04/001/dav/10/10.10.00-10.20.00[R][0@0][0].dav&startTime=2024-05-04 10:10:00&endTime=2024-05-04 10:20:00&length=2048",
		"path=/mnt/sd/2024-05-04/001/dav/10/10.00.00-10.10.00[R][0@0][0].dav&startTime=2024-05-04 10:00:00&endTime=2024-05-04 10:10:00",
		"path=/broken&startTime=garbage&endTime=2024-05-04 10:10:00",
	}, "\n")
	segments, err := parseFileList(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parseFileList: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if !strings.Contains(segments[0].Name, "10.00.00-10.10.00") {
		t.Fatalf("segments not sorted by start: %+v", segments)
	}
	if segments[1].Size != 2048 {
		t.Fatalf("expected size 2048, got %d", segments[1].Size)
	}
	if got := segments[0].FileName(); got != "10.00.00-10.10.00[R][0@0][0].dav" {
		t.Fatalf("unexpected file name %q", got)
	}
	want := time.Date(2024, 5, 4, 10, 0, 0, 0, time.Local)
	if !segments[0].Start.Equal(want) {
		t.Fatalf("expected start %v, got %v", want, segments[0].Start)
	}
}

func TestParseFileListItemsFormat(t *testing.T) {
	body := strings.Join([]string{
		"found=2",
		"items[1].FilePath=/mnt/sd/b.dav",
		"items[1].StartTime=2024-05-04 10:10:00",
		"items[1].EndTime=2024-05-04 10:20:00",
		"items[0].FilePath=/mnt/sd/a.dav",
		"items[0].StartTime=2024-05-04 10:00:00",
		"items[0].EndTime=2024-05-04 10:10:00",
		"items[0].Length=99",
	}, "\r\n")
	segments, err := parseFileList(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parseFileList: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Name != "/mnt/sd/a.dav" || segments[0].Size != 99 {
		t.Fatalf("unexpected first segment %+v", segments[0])
	}
	if segments[1].Name != "/mnt/sd/b.dav" {
		t.Fatalf("unexpected second segment %+v", segments[1])
	}
}

func TestDahuaUsesDigestAuthentication(t *testing.T) {
	var challenged, authorized bool
	d := newTestDahua(t, func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Digest ") {
			challenged = true
			w.Header().Set("WWW-Authenticate", `Digest realm="Login to camera", qop="auth", nonce="abc123", opaque="xyz"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !strings.Contains(auth, `username="admin"`) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		authorized = true
		fmt.Fprintln(w, "caps.MaxPreRecordTime=30")
	})

	if err := d.Available(context.Background()); err != nil {
		t.Fatalf("Available: %v", err)
	}
	if !challenged || !authorized {
		t.Fatalf("expected digest handshake, challenged=%v authorized=%v", challenged, authorized)
	}
}

func TestDahuaListSegmentsSendsWindow(t *testing.T) {
	var query map[string]string
	d := newTestDahua(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.Header().Set("WWW-Authenticate", `Digest realm="cam", nonce="n1", qop="auth"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		query = map[string]string{}
		for key, values := range r.URL.Query() {
			query[key] = values[0]
		}
		fmt.Fprintln(w, "path=/mnt/sd/a.dav&startTime=2024-05-04 10:00:00&endTime=2024-05-04 10:10:00")
		fmt.Fprintln(w, "path=/mnt/sd/old.dav&startTime=2024-05-03 10:00:00&endTime=2024-05-03 10:10:00")
	})

	since := time.Date(2024, 5, 4, 9, 0, 0, 0, time.Local)
	until := time.Date(2024, 5, 4, 12, 0, 0, 0, time.Local)
	segments, err := d.ListSegments(context.Background(), since, until)
	if err != nil {
		t.Fatalf("ListSegments: %v", err)
	}
	if len(segments) != 1 || segments[0].Name != "/mnt/sd/a.dav" {
		t.Fatalf("expected only the in-window segment, got %+v", segments)
	}
	if query["action"] != "findFile" || query["condition.Channel"] != "1" {
		t.Fatalf("unexpected query %v", query)
	}
	if query["condition.StartTime"] != "2024-05-04 09:00:00" || query["condition.EndTime"] != "2024-05-04 12:00:00" {
		t.Fatalf("unexpected window %v", query)
	}
}

func TestDahuaFetchUsesReportedSize(t *testing.T) {
	payload := strings.Repeat("x", 1024)
	d := newTestDahua(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.Header().Set("WWW-Authenticate", `Digest realm="cam", nonce="n1", qop="auth"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Query().Get("action") {
		case "getFileSize":
			fmt.Fprint(w, "size=1024\r\n")
		case "downloadFile":
			if r.URL.Query().Get("object") != "/mnt/sd/a.dav" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprint(w, payload)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	body, size, err := d.Fetch(context.Background(), Segment{Name: "/mnt/sd/a.dav"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer body.Close()
	if size != 1024 {
		t.Fatalf("expected size 1024, got %d", size)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(data) != payload {
		t.Fatalf("unexpected payload length %d", len(data))
	}
}

func TestDahuaFetchOutlastsRequestTimeout(t *testing.T) {
	chunks := []string{"0123456789", "abcdefghij", "ABCDEFGHIJ"}
	d := newTestDahuaTimeout(t, 1, func(w http.ResponseWriter, r *http.Request) {
		trickle(w, r, chunks, 700*time.Millisecond)
	})

	body, _, err := d.Fetch(context.Background(), Segment{Name: "/mnt/sd/slow.dav", Size: 30})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(data) != strings.Join(chunks, "") {
		t.Fatalf("unexpected payload %q", data)
	}
}

func TestDahuaFetchStalledTransferFails(t *testing.T) {
	d := newTestDahuaTimeout(t, 1, func(w http.ResponseWriter, r *http.Request) {
		trickle(w, r, []string{"0123456789", "never sent"}, 3*time.Second)
	})

	body, _, err := d.Fetch(context.Background(), Segment{Name: "/mnt/sd/stuck.dav", Size: 20})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer body.Close()
	_, err = io.ReadAll(body)
	if err == nil {
		t.Fatal("expected stalled transfer to fail")
	}
	if !errors.Is(err, services.ErrTransientIO) {
		t.Fatalf("expected transient io error, got %v", err)
	}
}

func TestDahuaUnavailableIsTransient(t *testing.T) {
	d := newTestDahua(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	err := d.Available(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransientIO) {
		t.Fatalf("expected transient io error, got %v", err)
	}
}
