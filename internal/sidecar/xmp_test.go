package sidecar

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const editorPacket = `<x:xmpmeta xmlns:x="adobe:ns:meta/" x:xmptk="Editor 1.0">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about=""
    xmlns:xmp="http://ns.adobe.com/xap/1.0/"
    xmlns:dc="http://purl.org/dc/elements/1.1/"
    xmp:Rating="4">
   <dc:subject>
    <rdf:Bag>
     <rdf:li>beach</rdf:li>
     <rdf:li>family</rdf:li>
    </rdf:Bag>
   </dc:subject>
   <dc:creator>
    <rdf:Seq>
     <rdf:li>Jo</rdf:li>
    </rdf:Seq>
   </dc:creator>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(editorPacket))
	require.NoError(t, err)
	assert.Equal(t, []string{"beach", "family"}, m.Subject)
	assert.Empty(t, m.Hierarchical)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("<x:xmpmeta><rdf:RDF>"))
	assert.ErrorIs(t, err, ErrParse)
}

func TestMetadata_Add(t *testing.T) {
	m := &Metadata{Subject: []string{"beach"}}
	m.Add("ai_cluster_fine_001", "beach", "ai_cluster_fine_001")

	assert.Equal(t, []string{"ai_cluster_fine_001", "beach"}, m.Subject)
	assert.Equal(t, []string{"AI/cluster/fine/001", "beach"}, m.Hierarchical)
}

func TestRender_FreshPacket(t *testing.T) {
	m := &Metadata{}
	m.Add("ai_cluster_fine_002", "ai_cluster_coarse_000")

	out, err := Render(nil, m)
	require.NoError(t, err)

	got, err := Parse(out)
	require.NoError(t, err)
	assert.True(t, m.Equal(got))
	assert.Contains(t, string(out), "<dc:subject>")
	assert.Contains(t, string(out), "<lr:hierarchicalSubject>")

	// Sorted order on disk.
	s := string(out)
	assert.Less(t, strings.Index(s, "ai_cluster_coarse_000"), strings.Index(s, "ai_cluster_fine_002"))
}

func TestRender_PreservesUnrelatedContent(t *testing.T) {
	existing, err := Parse([]byte(editorPacket))
	require.NoError(t, err)
	existing.Add("ai_cluster_fine_004")

	out, err := Render([]byte(editorPacket), existing)
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, `xmp:Rating="4"`)
	assert.Contains(t, s, `x:xmptk="Editor 1.0"`)
	assert.Contains(t, s, "<rdf:li>Jo</rdf:li>")
	assert.Equal(t, 1, strings.Count(s, "<dc:subject"))

	got, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"ai_cluster_fine_004", "beach", "family"}, got.Subject)
	assert.Equal(t, []string{"AI/cluster/fine/004"}, got.Hierarchical)
}

func TestRender_Idempotent(t *testing.T) {
	m, err := Parse([]byte(editorPacket))
	require.NoError(t, err)
	m.Add("ai_cluster_coarse_001")

	first, err := Render([]byte(editorPacket), m)
	require.NoError(t, err)
	second, err := Render(first, m)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestRender_SelfClosingDescription(t *testing.T) {
	packet := `<x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"><rdf:Description rdf:about="" xmlns:tiff="http://ns.adobe.com/tiff/1.0/" tiff:Make="Canon"/></rdf:RDF></x:xmpmeta>`

	m := &Metadata{}
	m.Add("ai_cluster_fine_000")

	out, err := Render([]byte(packet), m)
	require.NoError(t, err)
	assert.Contains(t, string(out), `tiff:Make="Canon"`)
	assert.Contains(t, string(out), "</rdf:Description>")

	got, err := Parse(out)
	require.NoError(t, err)
	assert.True(t, m.Equal(got))
}

func TestRender_MalformedFallsBackToFreshPacket(t *testing.T) {
	m := &Metadata{}
	m.Add("ai_cluster_fine_000")

	out, err := Render([]byte("not xml <<<"), m)
	require.NoError(t, err)

	got, err := Parse(out)
	require.NoError(t, err)
	assert.True(t, m.Equal(got))
}

func TestRender_EscapesKeywords(t *testing.T) {
	m := &Metadata{}
	m.Add("rock & roll", "<odd>")

	out, err := Render(nil, m)
	require.NoError(t, err)

	got, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"<odd>", "rock & roll"}, got.Subject)
}

func TestSplice_NoDescription(t *testing.T) {
	_, err := splice([]byte(`<x:xmpmeta xmlns:x="adobe:ns:meta/"/>`), &Metadata{Subject: []string{"a"}})
	assert.ErrorIs(t, err, ErrNoDescription)
}

func TestPathFor(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "IMG_0001.CR2")

	assert.Equal(t, filepath.Join(dir, "IMG_0001.xmp"), PathFor(src))

	upper := filepath.Join(dir, "IMG_0001.XMP")
	require.NoError(t, os.WriteFile(upper, []byte(editorPacket), 0o644))
	if _, err := os.Stat(filepath.Join(dir, "IMG_0001.xmp")); err == nil {
		t.Skip("case-insensitive filesystem")
	}
	assert.Equal(t, upper, PathFor(src))
}

func TestLoadAndWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.xmp")

	m, raw, err := Load(path)
	require.NoError(t, err)
	assert.True(t, m.Empty())
	assert.Nil(t, raw)

	m.Add("ai_cluster_fine_007")
	require.NoError(t, Write(path, raw, m))

	loaded, raw, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.True(t, m.Equal(loaded))
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.xmp")
	require.NoError(t, os.WriteFile(path, []byte("<x:xmpmeta>"), 0o644))

	m, raw, err := Load(path)
	assert.ErrorIs(t, err, ErrParse)
	assert.True(t, m.Empty())
	assert.NotEmpty(t, raw)
}
