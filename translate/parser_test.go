package translate

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamline/ingest/errors"
)

func writePacket(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))
	return path
}

func TestOpenPacketIteratesItems(t *testing.T) {
	path := writePacket(t,
		PacketBegin,
		`{"data": {"name": "one"}, "source": {"file": "feed.txt"}}`,
		`{"data": {"name": "two"}, "source": {"file": "feed.txt"}}`,
		PacketEnd,
		"",
	)

	parser, err := OpenPacket(path)
	require.NoError(t, err)
	defer parser.Close()

	first, err := parser.Next()
	require.NoError(t, err)
	assert.Equal(t, "one", first.Data["name"])
	assert.Equal(t, 1, first.Position)

	second, err := parser.Next()
	require.NoError(t, err)
	assert.Equal(t, "two", second.Data["name"])
	assert.Equal(t, 2, second.Position)

	_, err = parser.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 2, parser.Count())

	// iteration stays ended
	_, err = parser.Next()
	assert.Equal(t, io.EOF, err)
}

func TestOpenPacketRejectsIncompleteFile(t *testing.T) {
	// missing end sentinel: rejected before any item is read
	path := writePacket(t,
		PacketBegin,
		`{"data": {"name": "one"}, "source": {}}`,
	)
	_, err := OpenPacket(path)
	require.Error(t, err)
	assert.True(t, errors.IsIncompleteFileError(err))
}

func TestNewPacketParserRequiresBeginSentinel(t *testing.T) {
	_, err := NewPacketParser(strings.NewReader(`{"data": {}}`))
	require.Error(t, err)
	assert.True(t, errors.IsIncompleteFileError(err))

	_, err = NewPacketParser(strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, errors.IsIncompleteFileError(err))
}

func TestPacketParserBlankLineEndsIteration(t *testing.T) {
	parser, err := NewPacketParser(strings.NewReader(strings.Join([]string{
		PacketBegin,
		`{"data": {"name": "one"}, "source": {}}`,
		"",
		`{"data": {"name": "ignored"}, "source": {}}`,
	}, "\n")))
	require.NoError(t, err)

	_, err = parser.Next()
	require.NoError(t, err)
	_, err = parser.Next()
	assert.Equal(t, io.EOF, err)
}

func TestPacketParserLineValidation(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not json", "garbage"},
		{"missing data", `{"source": {}}`},
		{"missing source", `{"data": {}}`},
		{"data not object", `{"data": 5, "source": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser, err := NewPacketParser(strings.NewReader(PacketBegin + "\n" + tt.line + "\n" + PacketEnd))
			require.NoError(t, err)

			_, err = parser.Next()
			require.Error(t, err)
			assert.True(t, errors.IsInvalidInputError(err))
		})
	}
}

func TestPacketParserOverlongLine(t *testing.T) {
	long := `{"data": {"blob": "` + strings.Repeat("x", MaxLineBytes) + `"}, "source": {}}`
	parser, err := NewPacketParser(strings.NewReader(PacketBegin + "\n" + long + "\n" + PacketEnd))
	require.NoError(t, err)

	_, err = parser.Next()
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInputError(err))
}
