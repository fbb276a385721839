package console

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"go.trai.ch/zerr"
)

func TestColorProfile_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.Equal(t, termenv.Ascii, ColorProfile(&bytes.Buffer{}))
}

func TestPrinter_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Bold("Package %s", "foo")
	p.OK("wrote %s", "foo-1.0.ebuild")
	p.Cross("failed")
	p.Println("plain %d", 1)

	assert.Equal(t, "Package foo\n✓ wrote foo-1.0.ebuild\n✗ failed\nplain 1\n", buf.String())
}

func TestPrinter_Summary(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Summary(nil)
	assert.Empty(t, buf.String())

	p.Summary([]string{"No desktop files found.", "Dependency not found: qux"})
	want := "\n" + SummaryTitle + "\n\n! No desktop files found.\n! Dependency not found: qux\n\n"
	assert.Equal(t, want, buf.String())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, false)
	log.Debug("hidden")
	log.Info("shown", "key", "value")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "key=value")

	buf.Reset()
	NewLogger(&buf, true).Debug("verbose")
	assert.True(t, strings.Contains(buf.String(), "level=DEBUG"))
}

func TestErrorLines(t *testing.T) {
	plain := fmt.Errorf("reading: %w", errors.New("disk full"))
	assert.Equal(t, []string{"Error: reading: disk full"}, ErrorLines(plain))

	chained := zerr.Wrap(errors.New("disk full"), "failed to write file")
	assert.Equal(t, []string{
		"Error: failed to write file",
		"  Caused by:",
		"    → disk full",
	}, ErrorLines(chained))
}

func TestPrinter_Error(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Error(nil)
	assert.Empty(t, buf.String())

	p.Error(zerr.Wrap(errors.New("100% full"), "failed to write file"))
	assert.Equal(t, "✗ Error: failed to write file\n  Caused by:\n    → 100% full\n", buf.String())
}

func TestPrinter_Title(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	NewPrinter(&buf).Title("Control")
	assert.Equal(t, "Control\n", buf.String())
}
