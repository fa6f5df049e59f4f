package testsupport

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// FakeTools stands in for ffmpeg and ffprobe. The fake ffmpeg records each
// invocation (and the contents of any concat list it is given) in a log and
// writes a one-second duration into its output path. The fake ffprobe prints
// the contents of the file it is asked about, so media fixtures are plain
// text files holding a duration.
type FakeTools struct {
	Dir      string
	FFmpeg   string
	FFprobe  string
	LogPath  string
	failPath string
}

// Call is one recorded ffmpeg invocation.
type Call struct {
	Args []string
	// List holds the lines of the concat list passed via -f concat -i.
	List []string
}

const fakeFFmpeg = `#!/bin/sh
log='%s'
fail='%s'
printf 'CALL' >> "$log"
for a in "$@"; do printf '\t%%s' "$a" >> "$log"; done
printf '\n' >> "$log"
prev=""
concat=""
last=""
for a in "$@"; do
  if [ "$prev" = "-i" ] && [ "$concat" = "1" ]; then
    while IFS= read -r line || [ -n "$line" ]; do printf 'LIST\t%%s\n' "$line" >> "$log"; done < "$a"
    concat=""
  fi
  if [ "$prev" = "-f" ] && [ "$a" = "concat" ]; then concat=1; fi
  prev="$a"
  last="$a"
done
if [ -f "$fail" ]; then
  pattern=$(cat "$fail")
  case "$*" in
    *"$pattern"*) echo "simulated failure" >&2; exit 1 ;;
  esac
fi
printf '1.000\n' > "$last"
exit 0
`

const fakeFFprobe = `#!/bin/sh
last=""
for a in "$@"; do last="$a"; done
cat "$last"
`

// NewFakeTools writes the fake binaries into a fresh temp directory.
func NewFakeTools(t testing.TB) *FakeTools {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools require a POSIX shell")
	}

	dir := t.TempDir()
	tools := &FakeTools{
		Dir:      dir,
		FFmpeg:   filepath.Join(dir, "ffmpeg"),
		FFprobe:  filepath.Join(dir, "ffprobe"),
		LogPath:  filepath.Join(dir, "ffmpeg.log"),
		failPath: filepath.Join(dir, "ffmpeg.fail"),
	}

	ffmpeg := fmt.Sprintf(fakeFFmpeg, tools.LogPath, tools.failPath)
	if err := os.WriteFile(tools.FFmpeg, []byte(ffmpeg), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	if err := os.WriteFile(tools.FFprobe, []byte(fakeFFprobe), 0o755); err != nil {
		t.Fatalf("write fake ffprobe: %v", err)
	}
	return tools
}

// FailWhen makes the fake ffmpeg exit non-zero for any invocation whose
// arguments contain pattern.
func (f *FakeTools) FailWhen(t testing.TB, pattern string) {
	t.Helper()
	if err := os.WriteFile(f.failPath, []byte(pattern), 0o644); err != nil {
		t.Fatalf("write fail pattern: %v", err)
	}
}

// Calls parses the invocation log. It returns nil when ffmpeg never ran.
func (f *FakeTools) Calls(t testing.TB) []Call {
	t.Helper()

	file, err := os.Open(f.LogPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("open ffmpeg log: %v", err)
	}
	defer file.Close()

	var calls []Call
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		switch fields[0] {
		case "CALL":
			calls = append(calls, Call{Args: fields[1:]})
		case "LIST":
			if len(calls) > 0 && len(fields) > 1 {
				calls[len(calls)-1].List = append(calls[len(calls)-1].List, strings.Join(fields[1:], "\t"))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("read ffmpeg log: %v", err)
	}
	return calls
}

// HasArg reports whether the call contains arg.
func (c Call) HasArg(arg string) bool {
	for _, a := range c.Args {
		if a == arg {
			return true
		}
	}
	return false
}

// ArgAfter returns the argument following flag, or "".
func (c Call) ArgAfter(flag string) string {
	for i := 0; i < len(c.Args)-1; i++ {
		if c.Args[i] == flag {
			return c.Args[i+1]
		}
	}
	return ""
}

// Output is the final argument, which is always the output path.
func (c Call) Output() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[len(c.Args)-1]
}

// WriteMedia creates a media fixture whose probed duration is seconds. A
// non-zero modTime pins the file's modification time.
func WriteMedia(t testing.TB, path string, seconds float64, modTime time.Time) {
	t.Helper()
	WriteMediaRaw(t, path, fmt.Sprintf("%.3f\n", seconds), modTime)
}

// WriteMediaRaw creates a fixture with arbitrary probe output.
func WriteMediaRaw(t testing.TB, path, content string, modTime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(path, modTime, modTime); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}
}
