package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mblakley/soccer-cam/internal/services"
)

func TestFormatOffset(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00.000"},
		{10 * time.Minute, "00:10:00.000"},
		{time.Hour + 2*time.Minute + 3*time.Second + 400*time.Millisecond, "01:02:03.400"},
		{-time.Second, "00:00:00.000"},
	}
	for _, tc := range cases {
		if got := FormatOffset(tc.in); got != tc.want {
			t.Errorf("FormatOffset(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestConcatListEscapesQuotes(t *testing.T) {
	got := ConcatList([]string{"/data/a.dav", "/data/it's.dav"})
	want := "file '/data/a.dav'\nfile '/data/it'\\''s.dav'\n"
	if got != want {
		t.Fatalf("ConcatList = %q, want %q", got, want)
	}
}

func TestCombineWritesListAndRemovesIt(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "combined.tmp.mp4")
	var gotArgs []string
	var listed string
	tool := New("ffmpeg", nil).WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		gotArgs = args
		data, err := os.ReadFile(filepath.Join(dir, ListFileName))
		if err != nil {
			return err
		}
		listed = string(data)
		return os.WriteFile(out, []byte("video"), 0o644)
	})

	if err := tool.Combine(context.Background(), []string{"/x/a.dav", "/x/b.dav"}, out); err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if listed != "file '/x/a.dav'\nfile '/x/b.dav'\n" {
		t.Fatalf("unexpected list %q", listed)
	}
	if !reflect.DeepEqual(gotArgs, CombineArgs(filepath.Join(dir, ListFileName), out)) {
		t.Fatalf("unexpected args %v", gotArgs)
	}
	if _, err := os.Stat(filepath.Join(dir, ListFileName)); !os.IsNotExist(err) {
		t.Fatalf("expected concat list to be removed, got %v", err)
	}
}

func TestToolFailureIsExternalToolError(t *testing.T) {
	tool := New("", nil).WithCommandRunner(func(context.Context, string, ...string) error {
		return errors.New("exit status 1: moov atom not found")
	})
	err := tool.Trim(context.Background(), "in.mp4", time.Minute, 2*time.Minute, "out.mp4")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if tool.Binary() != "ffmpeg" {
		t.Fatalf("expected default binary, got %q", tool.Binary())
	}
}

func TestTrimRejectsEmptyRange(t *testing.T) {
	tool := New("ffmpeg", nil)
	err := tool.Trim(context.Background(), "in.mp4", time.Minute, time.Minute, "out.mp4")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestArgsShape(t *testing.T) {
	trim := strings.Join(TrimArgs("in.mp4", 10*time.Minute, 100*time.Minute, "out.mp4"), " ")
	if !strings.Contains(trim, "-ss 00:10:00.000 -to 01:40:00.000 -i in.mp4 -c copy") {
		t.Fatalf("unexpected trim args %q", trim)
	}
	snap := strings.Join(SnapshotArgs("in.mp4", 5*time.Minute, "s.jpg"), " ")
	if !strings.Contains(snap, "-ss 00:05:00.000 -i in.mp4 -vframes 1 -q:v 2 s.jpg") {
		t.Fatalf("unexpected snapshot args %q", snap)
	}
}

func TestConvertCopiesVideoAndEncodesAudio(t *testing.T) {
	var gotName string
	var gotArgs []string
	tool := New("/opt/ffmpeg", nil).WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		gotName, gotArgs = name, args
		return nil
	})
	if err := tool.Convert(context.Background(), "/x/a.dav", "/x/a.tmp.mp4"); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", "/x/a.dav",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"/x/a.tmp.mp4",
	}
	if gotName != "/opt/ffmpeg" || !reflect.DeepEqual(gotArgs, want) {
		t.Fatalf("ran %s %v", gotName, gotArgs)
	}
}
