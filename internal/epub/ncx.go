package epub

import (
	"strconv"

	"github.com/beevik/etree"
)

// NCX is the EPUB 2 navigation control document written next to the
// EPUB 3 navigation document for older readers.
type NCX struct {
	UID       string
	DocTitle  string
	NavPoints []NavPoint
}

// NavPoint is a single entry in the table of contents.
type NavPoint struct {
	Label    string
	Src      string // path relative to the OPF directory, with fragment
	Children []NavPoint
}

// depth returns the nesting depth of the navigation tree.
func (n *NCX) depth() int {
	var walk func([]NavPoint) int
	walk = func(points []NavPoint) int {
		max := 0
		for _, p := range points {
			if d := 1 + walk(p.Children); d > max {
				max = d
			}
		}
		return max
	}
	if d := walk(n.NavPoints); d > 0 {
		return d
	}
	return 1
}

func (n *NCX) document() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("ncx")
	root.CreateAttr("xmlns", "http://www.daisy.org/z3986/2005/ncx/")
	root.CreateAttr("version", "2005-1")

	head := root.CreateElement("head")
	for _, m := range [][2]string{
		{"dtb:uid", n.UID},
		{"dtb:depth", strconv.Itoa(n.depth())},
		{"dtb:totalPageCount", "0"},
		{"dtb:maxPageNumber", "0"},
	} {
		meta := head.CreateElement("meta")
		meta.CreateAttr("name", m[0])
		meta.CreateAttr("content", m[1])
	}

	root.CreateElement("docTitle").CreateElement("text").SetText(n.DocTitle)

	navMap := root.CreateElement("navMap")
	order := 0
	var add func(parent *etree.Element, points []NavPoint)
	add = func(parent *etree.Element, points []NavPoint) {
		for _, p := range points {
			order++
			np := parent.CreateElement("navPoint")
			np.CreateAttr("id", "navPoint-"+strconv.Itoa(order))
			np.CreateAttr("playOrder", strconv.Itoa(order))
			np.CreateElement("navLabel").CreateElement("text").SetText(p.Label)
			np.CreateElement("content").CreateAttr("src", p.Src)
			add(np, p.Children)
		}
	}
	add(navMap, n.NavPoints)

	doc.Indent(2)
	return doc
}
