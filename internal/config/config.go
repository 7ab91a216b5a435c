// Package config loads listener settings from an optional .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/desktop-voice-lab/internal/logging"
)

// DefaultRegistryURL hosts the openWakeWord release models.
const DefaultRegistryURL = "https://github.com/dscripka/openWakeWord/releases/download/v0.5.1/"

var ErrMissingWakeword = errors.New("WAKEWORD is not set")

// SetupError is a fatal startup problem paired with what the user should do
// about it.
type SetupError struct {
	Err  error
	Hint string
}

func (e *SetupError) Error() string { return e.Err.Error() }
func (e *SetupError) Unwrap() error { return e.Err }

// Hint returns the remediation hint carried by err, if any.
func Hint(err error) string {
	var se *SetupError
	if errors.As(err, &se) {
		return se.Hint
	}
	return ""
}

// Config is the full listener configuration. Durations are stored as
// time.Duration; the environment expresses them in (fractional) seconds.
type Config struct {
	Wakewords      []string
	Threshold      float64
	Cooldown       time.Duration
	CommandSeconds float64

	SampleRate   int
	ChunkSeconds float64
	QueueSize    int

	RecordGrace       time.Duration
	TranscribeTimeout time.Duration

	WakewordBackend string
	WakewordURL     string
	RegistryURL     string
	OnnxRuntimeLib  string
	ModelCacheDir   string

	WhisperBackend     string
	WhisperModel       string
	WhisperDevice      string
	WhisperComputeType string
	WhisperURL         string
	WhisperThreads     int
	Language           string
	VADRMSThreshold    float64

	TextForwardURL string
	MCPServerURL   string
	MCPCommand     string
	MCPTool        string

	LogLevel string
}

// ChunkFrames is the block size handed to the audio device.
func (c Config) ChunkFrames() int {
	return int(math.Round(float64(c.SampleRate) * c.ChunkSeconds))
}

type reader struct {
	errs []error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) float(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s=%q is not a number", key, v))
		return def
	}
	return f
}

func (r *reader) int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s=%q is not an integer", key, v))
		return def
	}
	return n
}

func (r *reader) seconds(key string, def float64) time.Duration {
	return time.Duration(r.float(key, def) * float64(time.Second))
}

// Load reads envFile (when it exists) into the environment without
// overriding variables that are already set, then builds a Config from the
// environment. A missing envFile is not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return Config{}, &SetupError{
					Err:  fmt.Errorf("load %s: %w", envFile, err),
					Hint: "Fix the syntax of " + envFile + " (KEY=value per line).",
				}
			}
			logging.Debugw("no env file found", "path", envFile)
		}
	}

	r := &reader{}
	cfg := Config{
		Wakewords:      splitList(os.Getenv("WAKEWORD")),
		Threshold:      r.float("THRESH", 0.6),
		Cooldown:       r.seconds("COOLDOWN", 2.5),
		CommandSeconds: r.float("COMMAND_SECONDS", 3.0),

		SampleRate:   r.int("SAMPLE_RATE", 16000),
		ChunkSeconds: r.float("CHUNK_SECONDS", 0.48),
		QueueSize:    r.int("QUEUE_SIZE", 8),

		RecordGrace:       r.seconds("RECORD_GRACE", 2.0),
		TranscribeTimeout: r.seconds("TRANSCRIBE_TIMEOUT", 60),

		WakewordBackend: strings.ToLower(r.str("WAKEWORD_BACKEND", "onnx")),
		WakewordURL:     r.str("WAKEWORD_URL", ""),
		RegistryURL:     r.str("WAKEWORD_REGISTRY_URL", DefaultRegistryURL),
		OnnxRuntimeLib:  r.str("ONNXRUNTIME_LIB", ""),
		ModelCacheDir:   r.str("MODEL_CACHE_DIR", defaultCacheDir()),

		WhisperBackend:     strings.ToLower(r.str("WHISPER_BACKEND", "whispercpp")),
		WhisperModel:       r.str("WHISPER_MODEL", "small"),
		WhisperDevice:      r.str("WHISPER_DEVICE", "cpu"),
		WhisperComputeType: r.str("WHISPER_COMPUTE_TYPE", "int8"),
		WhisperURL:         r.str("WHISPER_URL", ""),
		WhisperThreads:     r.int("WHISPER_THREADS", 0),
		Language:           r.str("STT_LANGUAGE", "en"),
		VADRMSThreshold:    r.float("VAD_RMS_THRESHOLD", 500),

		TextForwardURL: r.str("TEXT_FORWARD_URL", ""),
		MCPServerURL:   r.str("MCP_SERVER_URL", ""),
		MCPCommand:     r.str("MCP_COMMAND", ""),
		MCPTool:        r.str("MCP_TOOL", "heard"),

		LogLevel: r.str("LOG_LEVEL", "info"),
	}
	if len(r.errs) > 0 {
		return cfg, &SetupError{Err: errors.Join(r.errs...), Hint: "Correct the listed values in .env or the environment."}
	}
	return cfg, nil
}

// Validate reports the first configuration problem as a SetupError.
func (c Config) Validate() error {
	bad := func(hint, format string, args ...interface{}) error {
		return &SetupError{Err: fmt.Errorf(format, args...), Hint: hint}
	}
	if len(c.Wakewords) == 0 {
		return &SetupError{Err: ErrMissingWakeword, Hint: "Set WAKEWORD in .env (copy .env.example to .env)."}
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return bad("THRESH must lie between 0 and 1.", "threshold %.3f out of range", c.Threshold)
	}
	if c.Cooldown < 0 {
		return bad("COOLDOWN must be zero or positive.", "cooldown %s is negative", c.Cooldown)
	}
	if c.CommandSeconds <= 0 {
		return bad("COMMAND_SECONDS must be positive.", "command duration %.2fs is not positive", c.CommandSeconds)
	}
	if c.SampleRate <= 0 || c.ChunkFrames() <= 0 {
		return bad("SAMPLE_RATE and CHUNK_SECONDS must be positive.", "invalid block size %d at %d Hz", c.ChunkFrames(), c.SampleRate)
	}
	if c.QueueSize < 1 {
		return bad("QUEUE_SIZE must be at least 1.", "queue size %d", c.QueueSize)
	}
	if c.RecordGrace < 0 || c.TranscribeTimeout < 0 {
		return bad("RECORD_GRACE and TRANSCRIBE_TIMEOUT must not be negative.", "negative timeout")
	}
	switch c.WakewordBackend {
	case "onnx":
	case "remote":
		if c.WakewordURL == "" {
			return bad("Set WAKEWORD_URL to the ws:// address of the scoring server.", "remote wake-word backend needs WAKEWORD_URL")
		}
	default:
		return bad("WAKEWORD_BACKEND must be onnx or remote.", "unknown wake-word backend %q", c.WakewordBackend)
	}
	switch c.WhisperBackend {
	case "whispercpp":
	case "http":
		if c.WhisperURL == "" {
			return bad("Set WHISPER_URL to the transcription endpoint.", "http whisper backend needs WHISPER_URL")
		}
	default:
		return bad("WHISPER_BACKEND must be whispercpp or http.", "unknown whisper backend %q", c.WhisperBackend)
	}
	if c.MCPServerURL != "" && c.MCPCommand != "" {
		return bad("Set only one of MCP_SERVER_URL and MCP_COMMAND.", "both MCP transports configured")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultCacheDir() string {
	if d, err := os.UserCacheDir(); err == nil {
		return filepath.Join(d, "desktopvoice")
	}
	return filepath.Join(os.TempDir(), "desktopvoice-cache")
}

// Capability is the outcome of a startup check of an optional backend.
type Capability struct {
	Name      string
	Available bool
	Reason    string
}

func (c Capability) String() string {
	if c.Available {
		return c.Name + " available: yes"
	}
	if c.Reason == "" {
		return c.Name + " available: no"
	}
	return c.Name + " available: no (" + c.Reason + ")"
}
