// File path: internal/attachment/attachment_test.go
package attachment

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessEmptyFile(t *testing.T) {
	desc := NewProcessor().Process(bytes.NewReader(nil), "empty.txt", "text/plain")
	assert.Equal(t, KindEmpty, desc.Kind)
	assert.Equal(t, "[EMPTY FILE: empty.txt]", desc.DisplayText)
	assert.Empty(t, desc.Base64Payload)
}

func TestProcessImageRoundTrip(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff, 0x10}
	desc := NewProcessor().Process(bytes.NewReader(payload), "shot.png", "image/png")

	require.Equal(t, KindImage, desc.Kind)
	assert.True(t, desc.IsImage())
	assert.Equal(t, "image/png", desc.MIMEType)
	assert.Equal(t, "[IMAGE: shot.png] - Size: 7 bytes, Content-Type: image/png", desc.DisplayText)

	decoded, err := base64.StdEncoding.DecodeString(desc.Base64Payload)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestProcessTextTruncation(t *testing.T) {
	short := "Xin chào, đăng nhập bằng email"
	desc := NewProcessor().Process(strings.NewReader(short), "notes.txt", "text/plain")
	assert.Equal(t, KindText, desc.Kind)
	assert.Equal(t, short, desc.DisplayText)

	exact := strings.Repeat("é", MaxDisplayRunes)
	desc = NewProcessor().Process(strings.NewReader(exact), "exact.txt", "")
	assert.Equal(t, exact, desc.DisplayText)

	long := strings.Repeat("ü", MaxDisplayRunes+10)
	first := NewProcessor().Process(strings.NewReader(long), "long.txt", "text/plain")
	second := NewProcessor().Process(strings.NewReader(long), "long.txt", "text/plain")
	assert.Equal(t, strings.Repeat("ü", MaxDisplayRunes)+"... (truncated)", first.DisplayText)
	assert.Equal(t, first, second)
}

func TestProcessLatin1Fallback(t *testing.T) {
	desc := NewProcessor().Process(bytes.NewReader([]byte{'c', 'a', 'f', 0xe9}), "legacy.csv", "text/csv")
	assert.Equal(t, KindText, desc.Kind)
	assert.Equal(t, "café", desc.DisplayText)
}

func TestProcessBinaryWhenNoDecoderAccepts(t *testing.T) {
	p := NewProcessor(WithStrategies(UTF8))
	desc := p.Process(bytes.NewReader([]byte{0xff, 0xfe, 0x00}), "blob.bin", "application/octet-stream")
	assert.Equal(t, KindBinary, desc.Kind)
	assert.Equal(t, "[BINARY FILE: blob.bin] - Size: 3 bytes", desc.DisplayText)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestProcessReadErrorBecomesDescriptor(t *testing.T) {
	desc := NewProcessor().Process(failingReader{}, "broken.txt", "text/plain")
	assert.Equal(t, KindError, desc.Kind)
	assert.True(t, strings.HasPrefix(desc.DisplayText, "[ERROR READING FILE: broken.txt] - "))
	assert.Contains(t, desc.DisplayText, "connection reset")
}

func TestProcessDecoderPanicBecomesDescriptor(t *testing.T) {
	p := NewProcessor(WithStrategies(Strategy{Name: "bad", Decode: func([]byte) (string, error) { panic("boom") }}))
	desc := p.Process(strings.NewReader("data"), "x.txt", "text/plain")
	assert.Equal(t, KindError, desc.Kind)
	assert.Equal(t, "[ERROR READING FILE: x.txt] - boom", desc.DisplayText)
}

func TestProcessRewindsConsumedReader(t *testing.T) {
	r := strings.NewReader("already read")
	_, err := io.ReadAll(r)
	require.NoError(t, err)

	desc := NewProcessor().Process(r, "spent.txt", "text/plain")
	assert.Equal(t, KindText, desc.Kind)
	assert.Equal(t, "already read", desc.DisplayText)
}

func TestProcessRejectsOversizeUpload(t *testing.T) {
	p := NewProcessor(WithMaxBytes(4))
	desc := p.Process(strings.NewReader("12345"), "big.txt", "text/plain")
	assert.Equal(t, KindError, desc.Kind)
	assert.Contains(t, desc.DisplayText, "exceeds 4 bytes")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "ab... (truncated)", Truncate("abc", 2))
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
