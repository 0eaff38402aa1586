package helpers

import (
	"strings"
	"testing"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseHeader(t *testing.T, raw string) mail.Header {
	t.Helper()
	entity, err := message.Read(strings.NewReader(raw))
	require.NoError(t, err)
	return mail.Header{Header: entity.Header}
}

func TestHasBlockedExtension(t *testing.T) {
	blocked := []string{".exe", ".bat"}

	assert.True(t, HasBlockedExtension("setup.exe", blocked))
	assert.True(t, HasBlockedExtension("SETUP.EXE", blocked))
	assert.True(t, HasBlockedExtension("report.pdf.exe", blocked))
	assert.False(t, HasBlockedExtension("setup.pdf", blocked))
	assert.False(t, HasBlockedExtension("no-extension", blocked))
	assert.False(t, HasBlockedExtension("archive.exe.zip", blocked))
}

func TestExtractAddresses(t *testing.T) {
	h := parseHeader(t, "From: Alice <Alice@Example.com>\r\nTo: Bob <bob@example.com>, carol@example.com\r\n\r\nbody\r\n")

	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, ExtractAddresses(h, "To"))
	assert.Equal(t, "alice@example.com", SenderAddress(h))
	assert.Nil(t, ExtractAddresses(h, "Cc"))
}

func TestReferenceChain(t *testing.T) {
	h := parseHeader(t, "References: <root@x.example> <mid@x.example>\r\nIn-Reply-To: <mid@x.example>\r\n\r\nbody\r\n")
	assert.Equal(t, []string{"root@x.example", "mid@x.example"}, ReferenceChain(h))

	// In-Reply-To supplies the parent when References is absent.
	h = parseHeader(t, "In-Reply-To: <mid@x.example>\r\n\r\nbody\r\n")
	assert.Equal(t, []string{"mid@x.example"}, ReferenceChain(h))

	h = parseHeader(t, "Subject: fresh\r\n\r\nbody\r\n")
	assert.Nil(t, ReferenceChain(h))
}

func TestLooksAutoGenerated(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"auto submitted", "Auto-Submitted: auto-generated\r\n\r\n.\r\n", true},
		{"auto submitted no", "Auto-Submitted: no\r\n\r\n.\r\n", false},
		{"precedence bulk", "Precedence: bulk\r\n\r\n.\r\n", true},
		{"precedence first class", "Precedence: first-class\r\n\r\n.\r\n", false},
		{"response suppress", "X-Auto-Response-Suppress: All\r\n\r\n.\r\n", true},
		{"plain mail", "Subject: hi\r\n\r\n.\r\n", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, LooksAutoGenerated(parseHeader(t, tc.raw)))
		})
	}
}

func TestHasBulkMarkers(t *testing.T) {
	assert.True(t, HasBulkMarkers(parseHeader(t, "List-Id: dev <dev.lists.example>\r\n\r\n.\r\n")))
	assert.True(t, HasBulkMarkers(parseHeader(t, "List-Unsubscribe: <mailto:leave@x.example>\r\n\r\n.\r\n")))
	assert.True(t, HasBulkMarkers(parseHeader(t, "Precedence: junk\r\n\r\n.\r\n")))
	assert.False(t, HasBulkMarkers(parseHeader(t, "Subject: personal note\r\n\r\n.\r\n")))
}

func TestExtractPlaintextBodyPlain(t *testing.T) {
	entity, err := message.Read(strings.NewReader("Content-Type: text/plain\r\n\r\nhello there\r\n"))
	require.NoError(t, err)

	body, err := ExtractPlaintextBody(entity)
	require.NoError(t, err)
	require.NotNil(t, body)
	assert.Contains(t, *body, "hello there")
}

func TestExtractPlaintextBodyHTMLFallback(t *testing.T) {
	entity, err := message.Read(strings.NewReader("Content-Type: text/html\r\n\r\n<p>hello <b>bold</b> world</p>\r\n"))
	require.NoError(t, err)

	body, err := ExtractPlaintextBody(entity)
	require.NoError(t, err)
	require.NotNil(t, body)
	assert.Contains(t, *body, "hello")
	assert.NotContains(t, *body, "<p>")
}

func TestExtractPlaintextBodyPrefersPlainPart(t *testing.T) {
	raw := strings.Join([]string{
		`Content-Type: multipart/alternative; boundary="b"`,
		"",
		"--b",
		"Content-Type: text/html",
		"",
		"<p>rich version</p>",
		"--b",
		"Content-Type: text/plain",
		"",
		"plain version",
		"--b--",
		"",
	}, "\r\n")
	entity, err := message.Read(strings.NewReader(raw))
	require.NoError(t, err)

	body, err := ExtractPlaintextBody(entity)
	require.NoError(t, err)
	require.NotNil(t, body)
	assert.Contains(t, *body, "plain version")
}

func TestAttachmentFilenames(t *testing.T) {
	raw := strings.Join([]string{
		`Content-Type: multipart/mixed; boundary="b"`,
		"",
		"--b",
		"Content-Type: text/plain",
		"",
		"body text",
		"--b",
		"Content-Type: application/pdf",
		`Content-Disposition: attachment; filename="report.pdf"`,
		"",
		"%PDF-",
		"--b--",
		"",
	}, "\r\n")
	entity, err := message.Read(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, []string{"report.pdf"}, AttachmentFilenames(entity))
}
