package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/desktop-voice-lab/internal/logging"
)

// TempPattern names transient clip files.
const TempPattern = "desktopvoice_*.wav"

// WriteTemp stores the clip as a mono 16-bit PCM WAV in dir (os.TempDir when
// empty) and returns its path. The caller owns the file and must remove it.
func (c *Clip) WriteTemp(dir string) (string, error) {
	f, err := os.CreateTemp(dir, TempPattern)
	if err != nil {
		return "", fmt.Errorf("create clip file: %w", err)
	}
	path := f.Name()
	if err := c.encode(f); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close clip file: %w", err)
	}
	return path, nil
}

func (c *Clip) encode(f *os.File) error {
	enc := wav.NewEncoder(f, c.SampleRate, 16, 1, 1)
	data := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: c.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// ReadWAV loads a PCM WAV file as a mono 16-bit clip. Multi-channel input is
// averaged and other bit depths are rescaled to 16 bits.
func ReadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: decode: %w", path, err)
	}
	ch := int(dec.NumChans)
	if ch < 1 {
		ch = 1
	}
	shift := int(dec.BitDepth) - 16
	out := make([]int16, 0, len(buf.Data)/ch)
	for i := 0; i+ch <= len(buf.Data); i += ch {
		sum := 0
		for j := 0; j < ch; j++ {
			v := buf.Data[i+j]
			if dec.BitDepth == 8 {
				v -= 128 // 8-bit PCM is unsigned
			}
			sum += v
		}
		v := sum / ch
		switch {
		case shift > 0:
			v >>= shift
		case shift < 0:
			v <<= -shift
		}
		out = append(out, int16(v))
	}
	return &Clip{Samples: out, SampleRate: int(dec.SampleRate)}, nil
}

// SweepStale removes clip files in dir older than age, left behind by runs
// that were killed before cleanup. It returns how many were removed.
func SweepStale(dir string, age time.Duration) int {
	if dir == "" {
		dir = os.TempDir()
	}
	matches, err := filepath.Glob(filepath.Join(dir, TempPattern))
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-age)
	removed := 0
	for _, p := range matches {
		st, err := os.Stat(p)
		if err != nil || !strings.HasSuffix(p, ".wav") || st.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(p); err == nil {
			removed++
		}
	}
	if removed > 0 {
		logging.Infow("removed stale command clips", "dir", dir, "count", removed)
	}
	return removed
}
