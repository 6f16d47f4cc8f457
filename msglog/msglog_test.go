package msglog

import (
	"bytes"
	"strings"
	"testing"
)

func TestSectionfRespectsMask(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, MsgInfo)

	l.Sectionf(MsgDebug, "should not appear")
	if buf.Len() != 0 {
		t.Fatalf("MsgDebug message leaked through an MsgInfo-only mask: %q", buf.String())
	}

	l.Sectionf(MsgInfo, "track %d head %d", 5, 1)
	if !strings.Contains(buf.String(), "track 5 head 1") {
		t.Errorf("output = %q, want it to contain the formatted message", buf.String())
	}
}

func TestParseQuietBuildsSuppressionMask(t *testing.T) {
	mask := ParseQuiet([]string{"debug", "progress"})
	if mask&MsgDebug == 0 || mask&MsgProgress == 0 {
		t.Fatalf("ParseQuiet mask = %b, want MsgDebug|MsgProgress set", mask)
	}
	if mask&MsgErr != 0 {
		t.Errorf("ParseQuiet mask unexpectedly set MsgErr")
	}

	active := DefaultMask &^ mask
	l := New(&bytes.Buffer{}, active)
	if l.enabled(MsgDebug) {
		t.Error("MsgDebug should be disabled after quieting it")
	}
	if !l.enabled(MsgErr) {
		t.Error("MsgErr should remain enabled")
	}
}

func TestWithAddsStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, MsgStats)
	sub := l.With("cyl", 3, "head", 1)
	sub.Stats("track decoded")
	if !strings.Contains(buf.String(), "cyl=3") || !strings.Contains(buf.String(), "head=1") {
		t.Errorf("output = %q, want structured cyl/head fields", buf.String())
	}
}
