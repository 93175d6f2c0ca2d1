package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already safe", "hello_world.txt", "hello_world.txt"},
		{"forbidden characters", "имя#с%amp&ersand.txt", "имя_с_amp_ersand.txt"},
		{"spaces", "my report.pdf", "my+report.pdf"},
		{"path separators", "../etc/passwd", ".._etc_passwd"},
		{"windows separators", `C:\temp\x.txt`, "C__temp_x.txt"},
		{"non-ascii kept", "ø-report.txt", "ø-report.txt"},
		{"plus kept", "a+b.txt", "a+b.txt"},
		{"leading plus kept", "+plus.txt", "+plus.txt"},
		{"space and plus", "a b+c.txt", "a+b+c.txt"},
		{"empty", "", Placeholder},
		{"dot", ".", Placeholder},
		{"dot dot", "..", Placeholder},
		{
			"every forbidden character",
			"имя с #pound,%percent,&ampersand,{left,}right,\\backslash,<left,>right,*asterisk,?question,$dollar,!exclamation,'quote,\"quotes,:colon,@at,`backtick,|pipe,=equal.txt",
			"имя+с+_pound,_percent,_ampersand,_left,_right,_backslash,_left,_right,_asterisk,_question,_dollar,_exclamation,_quote,_quotes,_colon,_at,_backtick,_pipe,_equal.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"", ".", "..", "a b c", "a+b", "#%&{}\\/<>*?$!'\":@`|=", "имя с пробелом.txt",
		"  leading", "trailing  ", "tab\tname", "日本語 ファイル.pdf", "x..y", "...",
	}

	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "input %q", in)
	}
}

func TestSanitizedNamesCanBeCreated(t *testing.T) {
	dir := t.TempDir()
	for _, in := range []string{"a/b\\c:d*e?f\"g<h>i|j.txt", "..", "", "имя#с%amp&ersand.txt"} {
		path := filepath.Join(dir, Sanitize(in))
		require.Equal(t, dir, filepath.Dir(path), "input %q escaped the directory", in)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0600), "input %q", in)
	}
}

func TestDownloadedFileReadAll(t *testing.T) {
	inMemory := &DownloadedFile{Name: "a.txt", Path: "/nonexistent/a.txt", Content: []byte("hello")}
	data, err := inMemory.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	path := filepath.Join(t.TempDir(), "b.txt")
	require.NoError(t, os.WriteFile(path, []byte("from disk"), 0600))
	onDisk := &DownloadedFile{Name: "b.txt", Path: path}
	data, err = onDisk.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "from disk", string(data))
	assert.Equal(t, path, onDisk.String())

	_, err = (&DownloadedFile{Path: "/nonexistent/c.txt"}).ReadAll()
	assert.Error(t, err)
}
