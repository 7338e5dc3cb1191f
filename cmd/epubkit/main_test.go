package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/yuanying/epubkit/internal/epub"
	"github.com/yuanying/epubkit/internal/ingest"
	"github.com/yuanying/epubkit/internal/resource"
)

func readCLIOptionsForTest(t *testing.T, flagArgs ...string) (*cliOptions, error) {
	t.Helper()
	cmd := newRootCmd()
	if err := cmd.ParseFlags(flagArgs); err != nil {
		return nil, err
	}
	return readCLIOptions(cmd)
}

// createTestEPUB writes a two-chapter book with a JPEG cover into dir.
func createTestEPUB(t *testing.T, dir string) string {
	t.Helper()
	var cover bytes.Buffer
	require.NoError(t, imaging.Encode(&cover, imaging.New(8, 8, color.White), imaging.JPEG))

	files := []struct {
		name string
		data []byte
	}{
		{"mimetype", []byte("application/epub+zip")},
		{"META-INF/container.xml", []byte(`<container><rootfiles><rootfile full-path="OEBPS/content.opf"/></rootfiles></container>`)},
		{"OEBPS/content.opf", []byte(`<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
<metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>CLI Book</dc:title><dc:creator>A. Writer</dc:creator></metadata>
<manifest>
<item id="img" href="images/cover.jpg" media-type="image/jpeg" properties="cover-image"/>
<item id="c1" href="text/c1.xhtml" media-type="application/xhtml+xml"/>
<item id="c2" href="text/c2.xhtml" media-type="application/xhtml+xml"/>
</manifest>
<spine><itemref idref="c1"/><itemref idref="c2"/></spine>
</package>`)},
		{"OEBPS/images/cover.jpg", cover.Bytes()},
		{"OEBPS/text/c1.xhtml", []byte(`<html><body><h1>Arrival</h1><p>It rained.</p><img src="../images/cover.jpg"/></body></html>`)},
		{"OEBPS/text/c2.xhtml", []byte(`<html><body><h1>Departure</h1><p>It cleared.</p></body></html>`)},
	}

	path := filepath.Join(dir, "cli-book.epub")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for _, file := range files {
		fw, err := w.Create(file.name)
		require.NoError(t, err)
		_, err = fw.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--scratch-dir", t.TempDir(), "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func TestReadCLIOptions_Defaults(t *testing.T) {
	opts, err := readCLIOptionsForTest(t)
	require.NoError(t, err)

	assert.Equal(t, "text", opts.Format)
	assert.Equal(t, epub.DefaultResourcePrefix, opts.Config.Epub.ResourcePrefix)
	require.NotNil(t, opts.Logger)
	assert.True(t, opts.Logger.Core().Enabled(zap.InfoLevel))

	sessionOpts, err := opts.sessionOptions()
	require.NoError(t, err)
	assert.Equal(t, epub.DefaultFallbackEncodings, opts.Config.Epub.FallbackEncodings)
	assert.Len(t, sessionOpts.Decoder.Encodings(), 2)
}

func TestReadCLIOptions_CustomFlags(t *testing.T) {
	opts, err := readCLIOptionsForTest(t,
		"--format", "JSON",
		"--scratch-dir", "/var/tmp/epub",
		"--resource-prefix", "/r/",
		"--encodings", "GBK",
		"--sanitize",
		"--log-level", "warn",
		"--verbose",
	)
	require.NoError(t, err)

	assert.Equal(t, "json", opts.Format)
	assert.Equal(t, "/var/tmp/epub", opts.Config.Epub.ScratchDir)
	assert.Equal(t, "/r/", opts.Config.Epub.ResourcePrefix)
	assert.Equal(t, []string{"GBK"}, opts.Config.Epub.FallbackEncodings)
	assert.True(t, opts.Config.Epub.Sanitize)
	// --verbose overrides log-level to debug
	assert.True(t, opts.Logger.Core().Enabled(zap.DebugLevel))
}

func TestReadCLIOptions_Invalid(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"--format", "pdf"}, want: "--format"},
		{args: []string{"--log-level", "trace"}, want: "--log-level"},
	}

	for _, tt := range tests {
		_, err := readCLIOptionsForTest(t, tt.args...)
		require.Error(t, err, tt.args)
		assert.Contains(t, err.Error(), tt.want)
	}
}

type recordingSyncer struct {
	bytes.Buffer
	synced int
}

func (r *recordingSyncer) Sync() error {
	r.synced++
	return nil
}

func TestSyncLogger_FlushesBufferedEntries(t *testing.T) {
	sink := &recordingSyncer{}
	buffered := &zapcore.BufferedWriteSyncer{WS: sink, Size: 1 << 16}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), buffered, zap.InfoLevel)
	opts := &cliOptions{Logger: zap.New(core)}

	opts.Logger.Info("chapter degraded to placeholder")
	assert.Zero(t, sink.Len(), "entry is still buffered")

	opts.syncLogger()
	assert.Contains(t, sink.String(), "chapter degraded to placeholder")
	assert.Equal(t, 1, sink.synced)
	require.NoError(t, buffered.Stop())
}

func TestSessionOptions_UnknownEncoding(t *testing.T) {
	opts, err := readCLIOptionsForTest(t, "--encodings", "klingon-8")
	require.NoError(t, err)

	_, err = opts.sessionOptions()
	assert.ErrorContains(t, err, "klingon-8")
}

func TestMetadataCommand(t *testing.T) {
	book := createTestEPUB(t, t.TempDir())

	out, err := execute(t, "metadata", book)
	require.NoError(t, err)
	assert.Contains(t, out, "Title:  CLI Book")
	assert.Contains(t, out, "Author: A. Writer")
	assert.Contains(t, out, "Cover:  OEBPS/images/cover.jpg")

	out, err = execute(t, "metadata", book, "--format", "json")
	require.NoError(t, err)
	var md epub.Metadata
	require.NoError(t, json.Unmarshal([]byte(out), &md))
	assert.Equal(t, epub.Metadata{Title: "CLI Book", Author: "A. Writer", CoverPath: "OEBPS/images/cover.jpg"}, md)
}

func TestChaptersCommand_YAML(t *testing.T) {
	book := createTestEPUB(t, t.TempDir())

	out, err := execute(t, "chapters", book, "-f", "yaml")
	require.NoError(t, err)

	var chapters []epub.Chapter
	require.NoError(t, yaml.Unmarshal([]byte(out), &chapters))
	assert.Equal(t, []epub.Chapter{
		{Title: "Arrival", Href: "text/c1.xhtml", OrderNum: 1},
		{Title: "Departure", Href: "text/c2.xhtml", OrderNum: 2},
	}, chapters)
}

func TestTextAndHTMLCommands(t *testing.T) {
	book := createTestEPUB(t, t.TempDir())

	out, err := execute(t, "text", book, "text/c1.xhtml")
	require.NoError(t, err)
	assert.Equal(t, "Arrival\n\nIt rained.\n", out)

	out, err = execute(t, "html", book, "text/c1.xhtml", "--resource-prefix", "/res/")
	require.NoError(t, err)
	assert.Contains(t, out, `src="/res/images/cover.jpg"`)
	assert.Contains(t, out, "<style>")

	out, err = execute(t, "text", book, "text/missing.xhtml", "--format", "json")
	require.NoError(t, err)
	var content epub.Content
	require.NoError(t, json.Unmarshal([]byte(out), &content))
	assert.True(t, content.Placeholder)
	assert.Equal(t, "Chapter content unavailable", content.Body)
}

func TestCoverCommand(t *testing.T) {
	book := createTestEPUB(t, t.TempDir())
	coverDir := t.TempDir()

	out, err := execute(t, "cover", book, "--cover-dir", coverDir)
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.Equal(t, coverDir, filepath.Dir(path))
	assert.FileExists(t, path)

	_, err = execute(t, "cover", book, "--cover-dir", coverDir, "--quality", "101")
	assert.ErrorContains(t, err, "--quality")
}

func TestResourceCommand(t *testing.T) {
	library := t.TempDir()
	createTestEPUB(t, library)

	out, err := execute(t, "resource", "images/cover.jpg",
		"--library", library, "--cache-dir", t.TempDir(), "--format", "json")
	require.NoError(t, err)

	var res resource.Resource
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "image/jpeg", res.ContentType)
	assert.Equal(t, "OEBPS/images/cover.jpg", res.Entry)

	_, err = execute(t, "resource", "../etc/passwd", "--library", library)
	assert.ErrorIs(t, err, resource.ErrInvalidPath)
}

func TestIngestCommand(t *testing.T) {
	book := createTestEPUB(t, t.TempDir())
	coverDir := t.TempDir()

	out, err := execute(t, "ingest", book, "--cover-dir", coverDir, "--skip-html", "--format", "json")
	require.NoError(t, err)

	var got ingest.Book
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "CLI Book", got.Title)
	assert.NotEmpty(t, got.CoverFile)
	assert.FileExists(t, filepath.Join(coverDir, got.CoverFile))
	require.Len(t, got.Chapters, 2)
	assert.Equal(t, "It cleared.", strings.Split(got.Chapters[1].Text.Body, "\n\n")[1])
	assert.Nil(t, got.Chapters[0].HTML)

	_, err = execute(t, "ingest", filepath.Join(t.TempDir(), "absent.epub"), "--no-cover")
	assert.ErrorIs(t, err, epub.ErrNotAContainer)
}
