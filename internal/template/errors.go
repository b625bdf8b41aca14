package template

import (
	"errors"
	"fmt"
)

// TooLongError reports a template that does not fit inside the waveform it
// was matched against. Recoverable: the template is excluded from that run.
type TooLongError struct {
	TemplateID  string
	Label       string
	TemplateLen int
	WaveformLen int
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("template %s (%q) has %d samples but the waveform has only %d",
		e.TemplateID, e.Label, e.TemplateLen, e.WaveformLen)
}

// ErrInsufficientTemplates is returned when every template was excluded
// and the run cannot proceed.
var ErrInsufficientTemplates = errors.New("no usable templates remain")
