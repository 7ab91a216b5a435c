package main

import (
	"fmt"
	"io"
	"sync"
)

// console prints the interactive status lines on stdout. The score line is
// redrawn in place with a carriage return.
type console struct {
	out io.Writer
	// tip follows a transcription failure.
	tip string

	mu sync.Mutex
}

func newConsole(out io.Writer, tip string) *console { return &console{out: out, tip: tip} }

func (c *console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) Scores(label string, score float64) {
	if label == "" {
		return
	}
	c.printf("\rbest=%s score=%.3f  ", label, score)
}

func (c *console) Detected(label string, score float64) {
	c.printf("\nDETECTED: %s score=%.3f\n", label, score)
}

func (c *console) Recording(seconds float64) {
	c.printf("Recording command for %.1fs… speak now.\n", seconds)
}

func (c *console) Transcribing() { c.printf("Transcribing…\n") }

func (c *console) Heard(text string) {
	if text == "" {
		c.printf("Heard: \"\" (no speech detected)\n")
		return
	}
	c.printf("Heard: \"%s\"\n", text)
}

func (c *console) Failed(stage string, err error) {
	switch stage {
	case "transcribe":
		c.printf("Transcription failed: %v\n", err)
		if c.tip != "" {
			c.printf("Tip: %s\n", c.tip)
		}
	default:
		c.printf("Recording failed: %v\n", err)
	}
}
