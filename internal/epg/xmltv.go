// SPDX-License-Identifier: MIT

// Package epg provides the XMLTV model and the pure guide helpers used by the
// merge engine: channel name canonicalization, sort keys and clock inference.
package epg

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"

	"golang.org/x/net/html/charset"
)

// DefaultGenerator is written into the root element when none is configured.
const DefaultGenerator = "epgmerge"

// maxXMLSize bounds a single decoded guide document.
const maxXMLSize = 512 * 1024 * 1024

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// TV is the XMLTV root element.
type TV struct {
	XMLName   xml.Name    `xml:"tv"`
	Generator string      `xml:"generator-info-name,attr,omitempty"`
	Channels  []Channel   `xml:"channel"`
	Programs  []Programme `xml:"programme"`
}

// Channel is an XMLTV channel declaration.
type Channel struct {
	ID          string   `xml:"id,attr"`
	DisplayName []string `xml:"display-name"`
	Icon        *Icon    `xml:"icon,omitempty"`
}

// Icon references an image by URL.
type Icon struct {
	Src string `xml:"src,attr"`
}

// Programme is an XMLTV programme entry. Titles, descriptions and categories
// may repeat, one per language. Children the model does not name are kept in
// Extra and written back verbatim.
type Programme struct {
	Start      string     `xml:"start,attr"`
	Stop       string     `xml:"stop,attr,omitempty"`
	Channel    string     `xml:"channel,attr"`
	Titles     []LangText `xml:"title"`
	Descs      []LangText `xml:"desc"`
	Categories []LangText `xml:"category"`
	Icon       *Icon      `xml:"icon,omitempty"`
	Extra      []Element  `xml:",any"`
}

// LangText is character data with an optional lang attribute.
type LangText struct {
	Lang string `xml:"lang,attr,omitempty"`
	Text string `xml:",chardata"`
}

// Element is an XML element carried through untouched.
type Element struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

// childOrder is the position of each programme child in the XMLTV DTD.
var childOrder = map[string]int{
	"title": 0, "sub-title": 1, "desc": 2, "credits": 3, "date": 4,
	"category": 5, "keyword": 6, "language": 7, "orig-language": 8,
	"length": 9, "icon": 10, "url": 11, "country": 12, "episode-num": 13,
	"video": 14, "audio": 15, "previously-shown": 16, "premiere": 17,
	"last-chance": 18, "new": 19, "subtitles": 20, "rating": 21,
	"star-rating": 22, "review": 23, "image": 24,
}

func childRank(name string) int {
	if r, ok := childOrder[name]; ok {
		return r
	}
	return len(childOrder)
}

// MarshalXML writes the children in DTD order, interleaving Extra with the
// named fields. Unknown children go last in their original order.
func (p Programme) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "programme"}
	start.Attr = []xml.Attr{{Name: xml.Name{Local: "start"}, Value: p.Start}}
	if p.Stop != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "stop"}, Value: p.Stop})
	}
	start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "channel"}, Value: p.Channel})

	type child struct {
		rank int
		name string
		v    any
	}
	children := make([]child, 0, len(p.Titles)+len(p.Descs)+len(p.Categories)+len(p.Extra)+1)
	for _, t := range p.Titles {
		children = append(children, child{childRank("title"), "title", t})
	}
	for _, d := range p.Descs {
		children = append(children, child{childRank("desc"), "desc", d})
	}
	for _, c := range p.Categories {
		children = append(children, child{childRank("category"), "category", c})
	}
	if p.Icon != nil {
		children = append(children, child{childRank("icon"), "icon", p.Icon})
	}
	for _, x := range p.Extra {
		children = append(children, child{childRank(x.XMLName.Local), "", x})
	}
	sort.SliceStable(children, func(i, j int) bool { return children[i].rank < children[j].rank })

	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, c := range children {
		var err error
		if c.name == "" {
			err = e.Encode(c.v)
		} else {
			err = e.EncodeElement(c.v, xml.StartElement{Name: xml.Name{Local: c.name}})
		}
		if err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// Decode reads an XMLTV document. Entity expansion is disabled and non UTF-8
// encodings declared in the XML prolog are transcoded.
func Decode(r io.Reader) (*TV, error) {
	dec := xml.NewDecoder(io.LimitReader(r, maxXMLSize))
	dec.Strict = true
	dec.Entity = make(map[string]string)
	dec.CharsetReader = charset.NewReaderLabel

	var doc TV
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode xmltv: empty document")
		}
		return nil, fmt.Errorf("decode xmltv: %w", err)
	}
	return &doc, nil
}

// Encode writes tv as an XMLTV document with an explicit UTF-8 declaration.
// An empty indent writes the document on a single line.
func Encode(w io.Writer, tv *TV, indent string) error {
	if _, err := io.WriteString(w, xmlHeader); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	if indent != "" {
		enc.Indent("", indent)
	}
	if err := enc.Encode(tv); err != nil {
		return fmt.Errorf("encode xmltv: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
