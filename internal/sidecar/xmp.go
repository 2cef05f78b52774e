package sidecar

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"raw-organizer/internal/filesystem"
	"raw-organizer/internal/mediatypes"
)

// XML namespaces used in XMP keyword packets.
const (
	NSMeta = "adobe:ns:meta/"
	NSRDF  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSDC   = "http://purl.org/dc/elements/1.1/"
	NSLR   = "http://ns.adobe.com/lightroom/1.0/"
)

var (
	// ErrParse is returned when a sidecar is not well-formed XML.
	ErrParse = errors.New("sidecar parse failed")
	// ErrNoDescription is returned when a packet has no rdf:Description to
	// hold keywords.
	ErrNoDescription = errors.New("no rdf:Description element")
)

// Metadata is the keyword content of one sidecar. Both lists are sorted and
// free of duplicates.
type Metadata struct {
	Subject      []string
	Hierarchical []string
}

// Add unions flat keywords into m, deriving their hierarchical forms.
func (m *Metadata) Add(keywords ...string) {
	for _, k := range keywords {
		m.Subject = append(m.Subject, k)
		m.Hierarchical = append(m.Hierarchical, Hierarchical(k))
	}
	m.normalize()
}

// Equal reports whether m and other hold the same keywords.
func (m *Metadata) Equal(other *Metadata) bool {
	return slices.Equal(m.Subject, other.Subject) && slices.Equal(m.Hierarchical, other.Hierarchical)
}

// Empty reports whether m holds no keywords.
func (m *Metadata) Empty() bool {
	return len(m.Subject) == 0 && len(m.Hierarchical) == 0
}

func (m *Metadata) normalize() {
	m.Subject = sortedSet(m.Subject)
	m.Hierarchical = sortedSet(m.Hierarchical)
}

func sortedSet(s []string) []string {
	out := s[:0:0]
	for _, v := range s {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// PathFor returns the sidecar path for a source image: the same path with
// the extension replaced by .xmp. An existing upper-case .XMP is reused.
func PathFor(source string) string {
	base := strings.TrimSuffix(source, filepath.Ext(source))
	lower := base + mediatypes.SidecarExtension
	if _, err := os.Stat(lower); err == nil {
		return lower
	}
	upper := base + strings.ToUpper(mediatypes.SidecarExtension)
	if _, err := os.Stat(upper); err == nil {
		return upper
	}
	return lower
}

// Load reads the sidecar at path. A missing file yields empty metadata and a
// nil error; an unparseable one yields empty metadata and ErrParse.
func Load(path string) (*Metadata, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Metadata{}, nil, nil
		}
		return &Metadata{}, nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return &Metadata{}, data, err
	}
	return m, data, nil
}

// Parse extracts dc:subject and lr:hierarchicalSubject items from an XMP
// packet. Items in any RDF container (Bag, Seq, Alt) are accepted.
func Parse(data []byte) (*Metadata, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	m := &Metadata{}

	var stack []xml.Name
	var text strings.Builder
	inItem := false

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name)
			if t.Name.Space == NSRDF && t.Name.Local == "li" && keywordProperty(stack) != "" {
				inItem = true
				text.Reset()
			}
		case xml.CharData:
			if inItem {
				text.Write(t)
			}
		case xml.EndElement:
			if inItem && t.Name.Space == NSRDF && t.Name.Local == "li" {
				switch keywordProperty(stack) {
				case "subject":
					m.Subject = append(m.Subject, text.String())
				case "hierarchicalSubject":
					m.Hierarchical = append(m.Hierarchical, text.String())
				}
				inItem = false
			}
			stack = stack[:len(stack)-1]
		}
	}

	m.normalize()
	return m, nil
}

// keywordProperty reports which keyword property the rdf:li at the top of
// stack belongs to: the element two levels up must be dc:subject or
// lr:hierarchicalSubject.
func keywordProperty(stack []xml.Name) string {
	if len(stack) < 3 {
		return ""
	}
	prop := stack[len(stack)-3]
	switch {
	case prop.Space == NSDC && prop.Local == "subject":
		return "subject"
	case prop.Space == NSLR && prop.Local == "hierarchicalSubject":
		return "hierarchicalSubject"
	}
	return ""
}

// Write renders m into the sidecar at path, preserving any other content
// of an existing packet, and replaces the file atomically.
func Write(path string, existing []byte, m *Metadata) error {
	data, err := Render(existing, m)
	if err != nil {
		return err
	}
	return filesystem.WriteFileAtomic(path, data, 0o644)
}

// Render returns the sidecar bytes holding m. When existing is a well-formed
// packet with an rdf:Description, every dc:subject and lr:hierarchicalSubject
// property in it is replaced and all other bytes are kept; otherwise a new
// packet is generated.
func Render(existing []byte, m *Metadata) ([]byte, error) {
	if len(bytes.TrimSpace(existing)) > 0 {
		out, err := splice(existing, m)
		if err == nil {
			return out, nil
		}
	}
	return splice([]byte(emptyPacket), m)
}

const emptyPacket = `<?xpacket begin="` + "\ufeff" + `" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about=""
    xmlns:dc="http://purl.org/dc/elements/1.1/"
    xmlns:lr="http://ns.adobe.com/lightroom/1.0/">
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>
`
