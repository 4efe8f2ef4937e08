package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewProductionSuppressesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New("production").Output(&buf)

	logger.Debug().Msg("debug-entry")
	logger.Info().Msg("info-entry")

	out := buf.String()
	if strings.Contains(out, "debug-entry") {
		t.Error("debug entry emitted in production")
	}
	if !strings.Contains(out, "info-entry") {
		t.Error("info entry missing")
	}
}

func TestNewDevelopmentEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New("development").Output(&buf)

	logger.Debug().Msg("debug-entry")

	if !strings.Contains(buf.String(), "debug-entry") {
		t.Error("debug entry missing outside production")
	}
}

func TestNewCarriesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New("production").Output(&buf)

	logger.Info().Msg("entry")

	out := buf.String()
	if !strings.Contains(out, `"service":"fieldnote-agent"`) {
		t.Errorf("service field missing: %s", out)
	}
	if !strings.Contains(out, `"env":"production"`) {
		t.Errorf("env field missing: %s", out)
	}
}
