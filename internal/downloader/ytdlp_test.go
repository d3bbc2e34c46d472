package downloader

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getgoodtape/videoproc/internal/domain"
)

const sampleDump = `[youtube] dQw4w9WgXcQ: Downloading webpage
{"id":"dQw4w9WgXcQ","title":"Never Gonna Give You Up","duration":212.0,"uploader":"Rick Astley","thumbnail":"https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg","formats":[{"format_id":"140","ext":"m4a","abr":129.5,"acodec":"mp4a.40.2","vcodec":"none","filesize":3433514,"format_note":"medium"},{"format_id":"137","ext":"mp4","height":1080,"vcodec":"avc1.640028","acodec":"none","filesize_approx":80000000}]}
`

func TestParseMetadata(t *testing.T) {
	md, err := ParseMetadata(sampleDump)
	require.NoError(t, err)

	assert.Equal(t, "Never Gonna Give You Up", md.Title)
	assert.Equal(t, 212, md.DurationSeconds)
	assert.Equal(t, "Rick Astley", md.UploaderName)
	assert.Contains(t, md.ThumbnailURL, "maxresdefault")
	require.Len(t, md.Formats, 2)
	assert.Equal(t, "140", md.Formats[0].FormatID)
	assert.InDelta(t, 129.5, md.Formats[0].ABR, 0.01)
	assert.Equal(t, 1080, md.Formats[1].Height)
	assert.Equal(t, int64(80000000), md.Formats[1].Filesize)
}

func TestParseMetadata_ChannelFallback(t *testing.T) {
	md, err := ParseMetadata(`{"title":"x","channel":"Some Channel"}`)
	require.NoError(t, err)
	assert.Equal(t, "Some Channel", md.UploaderName)
	assert.Empty(t, md.Formats)
}

func TestParseMetadata_NoJSON(t *testing.T) {
	_, err := ParseMetadata("ERROR: Unsupported URL\n")
	assert.Error(t, err)
}

func TestFormatSelector(t *testing.T) {
	assert.Equal(t, "bestaudio/best", FormatSelector(domain.FormatMP3, "320"))
	assert.Equal(t, "bestvideo[height<=720]+bestaudio/best[height<=720]/best", FormatSelector(domain.FormatMP4, "720"))
	assert.Equal(t, "bestvideo+bestaudio/best", FormatSelector(domain.FormatMP4, ""))
}

func TestStderrSummary(t *testing.T) {
	stderr := "WARNING: something\nERROR: [youtube] abc: Sign in to confirm you're not a bot\n"
	assert.Equal(t, "ERROR: [youtube] abc: Sign in to confirm you're not a bot", stderrSummary(stderr))
	assert.Equal(t, "plain", stderrSummary("plain"))
}

func TestToolError(t *testing.T) {
	err := toolError("extract metadata", nil, exec.ErrNotFound)
	assert.True(t, errors.Is(err, domain.ErrToolMissing))

	base := errors.New("exit status 1")
	err = toolError("extract metadata", nil, base)
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, "extract metadata: exit status 1", err.Error())
}

func TestYtDlp_MissingBinary(t *testing.T) {
	y := NewYtDlp("/nonexistent/yt-dlp", testLogger())
	assert.False(t, y.Available())
}
