package sidecar

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

type edit struct {
	start, end int64
	text       string
}

type description struct {
	found       bool
	closed      bool
	depth       int
	start       int64 // offset of '<'
	startEnd    int64 // offset just past the start tag
	endStart    int64 // offset of the end tag
	selfClosing bool
	bindings    map[string]string
}

// splice rewrites the keyword properties of an XMP packet in place. Every
// dc:subject and lr:hierarchicalSubject child of any rdf:Description is cut,
// and the new properties are inserted at the end of the first
// rdf:Description. Byte offsets come from the decoder so the rest of the
// packet is copied through untouched.
func splice(data []byte, m *Metadata) ([]byte, error) {
	d := xml.NewDecoder(bytes.NewReader(data))

	type frame struct {
		name     xml.Name
		bindings map[string]string
	}
	var (
		stack     []frame
		edits     []edit
		desc      description
		propStart int64 = -1
		propDepth int
	)

	for {
		before := d.InputOffset()
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		after := d.InputOffset()

		switch t := tok.(type) {
		case xml.StartElement:
			var parent map[string]string
			if len(stack) > 0 {
				parent = stack[len(stack)-1].bindings
			}
			bindings := scope(parent, t.Attr)
			stack = append(stack, frame{name: t.Name, bindings: bindings})
			depth := len(stack)

			if propStart < 0 && depth >= 2 && isKeywordProperty(t.Name) && isDescription(stack[depth-2].name) {
				propStart = before
				propDepth = depth
			}
			if !desc.found && isDescription(t.Name) {
				desc = description{
					found:    true,
					depth:    depth,
					start:    before,
					startEnd: after,
					bindings: bindings,
				}
			}

		case xml.EndElement:
			depth := len(stack)
			if propStart >= 0 && depth == propDepth {
				edits = append(edits, edit{start: lineStart(data, propStart), end: after})
				propStart = -1
			}
			if desc.found && !desc.closed && depth == desc.depth {
				desc.closed = true
				desc.endStart = before
				desc.selfClosing = before == after
			}
			stack = stack[:len(stack)-1]
		}
	}

	if !desc.found {
		return nil, ErrNoDescription
	}

	if !m.Empty() {
		if desc.selfClosing {
			indent := indentBefore(data, desc.start)
			edits = append(edits, edit{
				start: desc.start,
				end:   desc.startEnd,
				text:  expandSelfClosing(data[desc.start:desc.startEnd], indent, m, desc.bindings),
			})
		} else {
			at := trimSpaceBefore(data, desc.endStart, desc.startEnd)
			indent := indentBefore(data, desc.endStart)
			edits = append(edits, edit{
				start: at,
				end:   at,
				text:  properties(m, indent+" ", desc.bindings),
			})
		}
	}

	sort.SliceStable(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var out bytes.Buffer
	out.Grow(len(data) + 256)
	var pos int64
	for _, e := range edits {
		if e.start < pos {
			continue
		}
		out.Write(data[pos:e.start])
		out.WriteString(e.text)
		pos = e.end
	}
	out.Write(data[pos:])
	return out.Bytes(), nil
}

func isDescription(n xml.Name) bool {
	return n.Space == NSRDF && n.Local == "Description"
}

func isKeywordProperty(n xml.Name) bool {
	return (n.Space == NSDC && n.Local == "subject") ||
		(n.Space == NSLR && n.Local == "hierarchicalSubject")
}

// scope returns the prefix bindings in effect for an element.
func scope(parent map[string]string, attrs []xml.Attr) map[string]string {
	var own map[string]string
	for _, a := range attrs {
		if a.Name.Space == "xmlns" {
			if own == nil {
				own = make(map[string]string, len(parent)+len(attrs))
				for k, v := range parent {
					own[k] = v
				}
			}
			own[a.Name.Local] = a.Value
		}
	}
	if own == nil {
		return parent
	}
	return own
}

// lineStart extends a cut backwards over the indentation and line break
// that precede offset, so removing an element also removes its line.
func lineStart(data []byte, offset int64) int64 {
	i := offset
	for i > 0 && (data[i-1] == ' ' || data[i-1] == '\t') {
		i--
	}
	if i > 0 && data[i-1] == '\n' {
		i--
		if i > 0 && data[i-1] == '\r' {
			i--
		}
		return i
	}
	return offset
}

func trimSpaceBefore(data []byte, offset, floor int64) int64 {
	i := offset
	for i > floor && isSpace(data[i-1]) {
		i--
	}
	return i
}

// indentBefore returns the run of blanks between the last line break and
// offset, or "" when other content shares the line.
func indentBefore(data []byte, offset int64) string {
	i := offset
	for i > 0 && (data[i-1] == ' ' || data[i-1] == '\t') {
		i--
	}
	if i == 0 || data[i-1] == '\n' || data[i-1] == '\r' {
		return string(data[i:offset])
	}
	return ""
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func expandSelfClosing(tag []byte, indent string, m *Metadata, bindings map[string]string) string {
	open := strings.TrimRight(strings.TrimSuffix(string(tag), "/>"), " \t\r\n")
	name := strings.TrimPrefix(open, "<")
	if i := strings.IndexAny(name, " \t\r\n"); i >= 0 {
		name = name[:i]
	}
	return open + ">" + properties(m, indent+" ", bindings) + "\n" + indent + "</" + name + ">"
}

// properties renders the keyword bags, each on its own lines starting with
// a line break. Prefixes not already bound in scope are declared locally.
func properties(m *Metadata, indent string, bindings map[string]string) string {
	var b strings.Builder
	bag := func(qname, prefix, ns string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString("\n" + indent + "<" + qname)
		declare(&b, bindings, prefix, ns)
		declare(&b, bindings, "rdf", NSRDF)
		b.WriteString(">\n" + indent + " <rdf:Bag>")
		for _, item := range items {
			b.WriteString("\n" + indent + "  <rdf:li>")
			_ = xml.EscapeText(&b, []byte(item))
			b.WriteString("</rdf:li>")
		}
		b.WriteString("\n" + indent + " </rdf:Bag>\n" + indent + "</" + qname + ">")
	}
	bag("dc:subject", "dc", NSDC, m.Subject)
	bag("lr:hierarchicalSubject", "lr", NSLR, m.Hierarchical)
	return b.String()
}

func declare(b *strings.Builder, bindings map[string]string, prefix, ns string) {
	if bindings[prefix] == ns {
		return
	}
	fmt.Fprintf(b, " xmlns:%s=%q", prefix, ns)
}
