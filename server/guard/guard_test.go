package guard

import (
	"strings"
	"testing"

	"github.com/emersion/go-message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMessage(t *testing.T, filename string) *message.Entity {
	t.Helper()
	raw := strings.Join([]string{
		"From: sender@example.com",
		"To: rcpt@example.com",
		"Subject: test",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="frontier"`,
		"",
		"--frontier",
		"Content-Type: text/plain",
		"",
		"see attachment",
		"--frontier",
		"Content-Type: application/octet-stream",
		`Content-Disposition: attachment; filename="` + filename + `"`,
		"",
		"binary stuff",
		"--frontier--",
		"",
	}, "\r\n")

	entity, err := message.Read(strings.NewReader(raw))
	require.NoError(t, err)
	return entity
}

func TestCheckBlocksDangerousExtensions(t *testing.T) {
	g := New()

	tests := []struct {
		filename string
		blocked  bool
	}{
		{"invoice.exe", true},
		{"invoice.EXE", true},
		{"script.ps1", true},
		{"run.bat", true},
		{"page.js", true},
		{"invoice.pdf", false},
		{"notes.txt", false},
		// only the final extension counts
		{"invoice.pdf.exe", true},
		{"notes.txt.docx", false},
	}

	for _, tc := range tests {
		t.Run(tc.filename, func(t *testing.T) {
			got := g.Check(buildMessage(t, tc.filename))
			if tc.blocked {
				assert.Equal(t, tc.filename, got)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestCheckPlainMessagePasses(t *testing.T) {
	raw := "From: a@example.com\r\nSubject: hi\r\n\r\nplain body\r\n"
	entity, err := message.Read(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Empty(t, New().Check(entity))
}

func TestCheckCustomExtensionList(t *testing.T) {
	g := NewWithExtensions([]string{".zip"})
	assert.Equal(t, "archive.zip", g.Check(buildMessage(t, "archive.zip")))
	assert.Empty(t, g.Check(buildMessage(t, "invoice.exe")))
}
