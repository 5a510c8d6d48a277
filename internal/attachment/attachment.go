// File path: internal/attachment/attachment.go
package attachment

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nicodishanthj/testcase_agent/internal/common"
	"github.com/nicodishanthj/testcase_agent/internal/common/telemetry"
)

// Kind classifies a preprocessed upload.
type Kind string

const (
	KindEmpty  Kind = "empty"
	KindImage  Kind = "image"
	KindText   Kind = "text"
	KindBinary Kind = "binary"
	KindError  Kind = "error"
)

const (
	// DefaultMaxBytes caps how much of an upload is read into memory.
	DefaultMaxBytes int64 = 20 << 20
	// MaxDisplayRunes is the number of characters of decoded text kept in
	// the display text.
	MaxDisplayRunes  = 2000
	truncationSuffix = "... (truncated)"
)

// Descriptor is the text-safe summary of one uploaded file. Raw bytes are
// never kept; images additionally carry their base64 payload.
type Descriptor struct {
	FileName      string `json:"file_name"`
	Kind          Kind   `json:"kind"`
	DisplayText   string `json:"display_text"`
	Base64Payload string `json:"base64_payload,omitempty"`
	MIMEType      string `json:"mime_type,omitempty"`
}

// IsImage reports whether the descriptor carries an image payload.
func (d *Descriptor) IsImage() bool {
	return d != nil && d.Kind == KindImage && d.Base64Payload != ""
}

// Processor turns uploads into descriptors. The zero value is not usable;
// construct with NewProcessor.
type Processor struct {
	maxBytes   int64
	strategies []Strategy
	metrics    *telemetry.Metrics
}

// Option configures a Processor.
type Option func(*Processor)

// WithMaxBytes sets the upload size ceiling. Non-positive values keep the
// default.
func WithMaxBytes(n int64) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

// WithStrategies replaces the ordered list of text decoders.
func WithStrategies(strategies ...Strategy) Option {
	return func(p *Processor) {
		p.strategies = append([]Strategy(nil), strategies...)
	}
}

// WithMetrics records descriptor kinds on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

func NewProcessor(opts ...Option) *Processor {
	p := &Processor{maxBytes: DefaultMaxBytes, strategies: DefaultStrategies()}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Process reads r once and classifies it. It never fails: read errors and
// decoder panics are folded into a KindError descriptor.
func (p *Processor) Process(r io.Reader, fileName, contentType string) (desc Descriptor) {
	defer func() {
		if rec := recover(); rec != nil {
			desc = errorDescriptor(fileName, fmt.Errorf("%v", rec))
		}
		p.metrics.RecordAttachment(string(desc.Kind))
		if desc.Kind == KindError {
			common.Logger().Warn("attachment: preprocessing failed", "file", fileName, "detail", desc.DisplayText)
		}
	}()

	data, err := p.read(r)
	if err != nil {
		return errorDescriptor(fileName, err)
	}
	return p.classify(data, fileName, contentType)
}

func (p *Processor) classify(data []byte, fileName, contentType string) Descriptor {
	if len(data) == 0 {
		return Descriptor{
			FileName:    fileName,
			Kind:        KindEmpty,
			DisplayText: fmt.Sprintf("[EMPTY FILE: %s]", fileName),
		}
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return Descriptor{
			FileName:      fileName,
			Kind:          KindImage,
			DisplayText:   fmt.Sprintf("[IMAGE: %s] - Size: %d bytes, Content-Type: %s", fileName, len(data), contentType),
			Base64Payload: base64.StdEncoding.EncodeToString(data),
			MIMEType:      contentType,
		}
	}
	for _, strategy := range p.strategies {
		text, err := strategy.Decode(data)
		if err != nil {
			common.Logger().Debug("attachment: decoder rejected payload", "file", fileName, "decoder", strategy.Name, "error", err)
			continue
		}
		return Descriptor{
			FileName:    fileName,
			Kind:        KindText,
			DisplayText: Truncate(text, MaxDisplayRunes),
		}
	}
	return Descriptor{
		FileName:    fileName,
		Kind:        KindBinary,
		DisplayText: fmt.Sprintf("[BINARY FILE: %s] - Size: %d bytes", fileName, len(data)),
	}
}

func (p *Processor) read(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, errors.New("no file content")
	}
	data, err := p.readLimited(r)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		return data, nil
	}
	// The cursor may already sit at EOF if an earlier reader consumed it.
	seeker, ok := r.(io.Seeker)
	if !ok {
		return data, nil
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind upload: %w", err)
	}
	return p.readLimited(r)
}

func (p *Processor) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > p.maxBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", p.maxBytes)
	}
	return data, nil
}

func errorDescriptor(fileName string, err error) Descriptor {
	return Descriptor{
		FileName:    fileName,
		Kind:        KindError,
		DisplayText: fmt.Sprintf("[ERROR READING FILE: %s] - %s", fileName, err),
	}
}

// Truncate keeps the first limit characters of text, appending the
// truncation marker when anything was dropped.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	count := 0
	for idx := range text {
		if count == limit {
			return text[:idx] + truncationSuffix
		}
		count++
	}
	return text
}
