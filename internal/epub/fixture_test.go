package epub

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixtureFile is one archive entry. Entries are written in the given order.
type fixtureFile struct {
	name string
	body string
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// packageDoc renders a package document from its sections.
func packageDoc(metadata, manifest, spineAttrs, spine string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
%s
  </metadata>
  <manifest>
%s
  </manifest>
  <spine%s>
%s
  </spine>
</package>`, metadata, manifest, spineAttrs, spine)
}

func xhtmlDoc(title, body string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>%s</title></head>
<body>%s</body>
</html>`, title, body)
}

// writeEPUB creates an EPUB archive in a temp dir from the given entries.
func writeEPUB(t *testing.T, files ...fixtureFile) string {
	t.Helper()
	epubPath := filepath.Join(t.TempDir(), "test.epub")
	f, err := os.Create(epubPath)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)

	// mimetype (must be uncompressed/stored)
	mw, err := w.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	require.NoError(t, err)
	_, err = mw.Write([]byte("application/epub+zip"))
	require.NoError(t, err)

	for _, file := range files {
		fw, err := w.Create(file.name)
		require.NoError(t, err, "failed to create %s", file.name)
		_, err = fw.Write([]byte(file.body))
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	return epubPath
}

// sampleBook is a small well-formed EPUB 2 book with an NCX.
func sampleBook() []fixtureFile {
	return []fixtureFile{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", packageDoc(
			`<dc:title>Sample Book</dc:title><dc:creator>J. Doe</dc:creator><meta name="cover" content="cover-img"/>`,
			`<item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
<item id="cover-img" href="images/cover.jpg" media-type="image/jpeg"/>
<item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
<item id="ch2" href="text/ch2.xhtml" media-type="application/xhtml+xml"/>`,
			` toc="ncx"`,
			`<itemref idref="ch1"/><itemref idref="ch2"/>`,
		)},
		{"OEBPS/toc.ncx", ncxDoc(
			`<navPoint id="np1" playOrder="1"><navLabel><text>Opening</text></navLabel><content src="text/ch1.xhtml"/></navPoint>
<navPoint id="np2" playOrder="2"><navLabel><text>Closing</text></navLabel><content src="text/ch2.xhtml#end"/></navPoint>`,
		)},
		{"OEBPS/images/cover.jpg", "not really a jpeg"},
		{"OEBPS/text/ch1.xhtml", xhtmlDoc("One", `<h1>Opening</h1><p>First paragraph.</p><img src="../images/cover.jpg"/>`)},
		{"OEBPS/text/ch2.xhtml", xhtmlDoc("Two", `<h1>Closing</h1><p>Last paragraph.</p>`)},
	}
}

func ncxDoc(navPoints string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head><meta name="dtb:uid" content="uid"/></head>
  <docTitle><text>Book</text></docTitle>
  <navMap>
%s
  </navMap>
</ncx>`, navPoints)
}

// openFixture opens an EPUB built from files and closes it at test end.
func openFixture(t *testing.T, files ...fixtureFile) *Session {
	t.Helper()
	s, err := Open(writeEPUB(t, files...), Options{ScratchDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// spineBook builds a book without NCX whose spine lists the given chapters.
func spineBook(chapters map[string]string, order ...string) []fixtureFile {
	var manifest, spine string
	files := []fixtureFile{{"META-INF/container.xml", containerXML}}
	for _, id := range order {
		manifest += fmt.Sprintf(`<item id="%s" href="%s.xhtml" media-type="application/xhtml+xml"/>`+"\n", id, id)
		spine += fmt.Sprintf(`<itemref idref="%s"/>`, id)
		files = append(files, fixtureFile{"OEBPS/" + id + ".xhtml", chapters[id]})
	}
	files = append(files, fixtureFile{"OEBPS/content.opf", packageDoc(`<dc:title>Spine</dc:title>`, manifest, "", spine)})
	return files
}
