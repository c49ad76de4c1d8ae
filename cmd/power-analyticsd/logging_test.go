package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(verbose bool, topics string) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(newTopicHandler(inner, verbose, topics)), &buf
}

func TestTopicHandler_FiltersDisabledTopics(t *testing.T) {
	logger, buf := newTestLogger(false, "power, analytics")

	logger.With("topic", "power").Info("power sample")
	logger.With("topic", "hardware").Info("hardware sample")
	logger.Info("untagged")
	logger.Info("record attr", "topic", "lifecycle")

	out := buf.String()
	if !strings.Contains(out, "power sample") {
		t.Fatalf("enabled topic missing from output:\n%s", out)
	}
	if strings.Contains(out, "hardware sample") {
		t.Fatalf("disabled topic logged:\n%s", out)
	}
	if !strings.Contains(out, "untagged") {
		t.Fatalf("untagged record missing from output:\n%s", out)
	}
	if strings.Contains(out, "record attr") {
		t.Fatalf("record-level disabled topic logged:\n%s", out)
	}
}

func TestTopicHandler_WarningsAlwaysPass(t *testing.T) {
	logger, buf := newTestLogger(false, "")

	logger.With("topic", "hardware").Warn("probe failed")

	if !strings.Contains(buf.String(), "probe failed") {
		t.Fatalf("warning filtered:\n%s", buf.String())
	}
}

func TestTopicHandler_Verbose(t *testing.T) {
	logger, buf := newTestLogger(true, "")

	logger.With("topic", "hardware").Debug("hardware sample")

	if !strings.Contains(buf.String(), "hardware sample") {
		t.Fatalf("verbose logging dropped record:\n%s", buf.String())
	}
}
