package progress

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_Disabled(t *testing.T) {
	buf := &bytes.Buffer{}
	fn := New(Options{Writer: buf, Disabled: true})

	fn(0, 3)
	fn(3, 3)

	if buf.Len() != 0 {
		t.Errorf("disabled progress wrote %q", buf.String())
	}
}

func TestNew_RendersBar(t *testing.T) {
	buf := &bytes.Buffer{}
	fn := New(Options{Writer: buf, NoColor: true})

	fn(0, 2)
	fn(1, 2)
	fn(2, 2)

	out := buf.String()
	if !strings.Contains(out, Description) {
		t.Errorf("output %q does not contain %q", out, Description)
	}
	if !strings.Contains(out, "2/2") {
		t.Errorf("output %q does not show final count", out)
	}
	if strings.Contains(out, "[cyan]") {
		t.Errorf("color markup leaked into plain output: %q", out)
	}
}

func TestNew_EmptyPass(t *testing.T) {
	buf := &bytes.Buffer{}
	fn := New(Options{Writer: buf, NoColor: true})

	// must not panic on zero total
	fn(0, 0)
	fn(0, 1)
	fn(1, 1)
}

func TestNew_NonTerminalHasNoColor(t *testing.T) {
	buf := &bytes.Buffer{}
	fn := New(Options{Writer: buf})

	fn(0, 1)
	fn(1, 1)

	if strings.Contains(buf.String(), "\x1b[36m") {
		t.Errorf("buffer writer should not get color codes: %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	var fn Func = Nop
	fn(0, 10)
	fn(10, 10)
}
