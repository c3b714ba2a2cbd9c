package output_test

import (
	"bytes"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"go.trai.ch/dockyard/internal/ui/output"
)

func TestColorProfile_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.Equal(t, termenv.Ascii, output.ColorProfile())
}

func TestNew_PlainWhenNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	out := output.New(&buf)
	_, err := out.WriteString(out.String("hello").Foreground(termenv.RGBColor("#FF0000")).String())
	assert.NoError(t, err)
	assert.Equal(t, "hello", buf.String())
}

func TestRenderer_PlainWhenNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	r := output.Renderer(&buf)
	assert.Equal(t, termenv.Ascii, r.ColorProfile())
	assert.Equal(t, "web", r.NewStyle().Bold(true).Render("web"))
}
