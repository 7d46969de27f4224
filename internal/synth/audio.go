package synth

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gopxl/beep/mp3"

	"github.com/jackzampolin/narrate/internal/providers"
)

// measureDurationMS decodes MP3 audio to find its length. Other formats and
// undecodable data fall back to the provider's figure, then to an estimate
// from the character count.
func measureDurationMS(audio []byte, format string, reported, chars int) int {
	if format == "" || format == "mp3" {
		if ms, err := mp3DurationMS(audio); err == nil && ms > 0 {
			return ms
		}
	}
	if reported > 0 {
		return reported
	}
	return providers.EstimateDurationMS(chars)
}

func mp3DurationMS(audio []byte) (int, error) {
	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(audio)))
	if err != nil {
		return 0, err
	}
	defer streamer.Close()
	return int(format.SampleRate.D(streamer.Len()).Milliseconds()), nil
}

// concatFiles writes the given files back to back into dst. MP3 frames are
// self-delimiting, so segments from one voice and format join without
// re-encoding.
func concatFiles(dst string, files []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("create temp track: %w", err)
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	for _, f := range files {
		in, err := os.Open(f)
		if err != nil {
			cleanup()
			return fmt.Errorf("open segment: %w", err)
		}
		_, err = io.Copy(tmp, in)
		_ = in.Close()
		if err != nil {
			cleanup()
			return fmt.Errorf("copy segment %s: %w", filepath.Base(f), err)
		}
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

var filenameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", " -", "*", "_", "?", "", "\"", "'", "<", "_", ">", "_", "|", "_",
)

// trackFileBase returns "NN - Title" with the number padded to the width
// of total.
func trackFileBase(number, total int, title string) string {
	width := len(fmt.Sprint(total))
	if width < 2 {
		width = 2
	}
	return fmt.Sprintf("%0*d - %s", width, number, sanitizeTitle(title))
}

func sanitizeTitle(title string) string {
	title = strings.TrimSpace(filenameReplacer.Replace(title))
	title = strings.Trim(title, ". ")
	if utf8.RuneCountInString(title) > 100 {
		title = strings.TrimSpace(string([]rune(title)[:100]))
	}
	if title == "" {
		return "Track"
	}
	return title
}
