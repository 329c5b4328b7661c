package wire

import (
	"fmt"
	"strings"
)

// Response builds a <response><result>...</result></response> document.
// Fields are appended in the order handlers add them and rendered as a
// flat element tree; there is no need for the full Node type on the write
// side since every response shape is handler-authored, not parsed.
type Response struct {
	success bool
	errMsg  string
	params  []element
}

type element struct {
	tag      string
	text     string
	children []element
}

// NewSuccess starts a successful response.
func NewSuccess() *Response {
	return &Response{success: true}
}

// NewFailure starts a failed response carrying a human-readable error
// message.
func NewFailure(err error) *Response {
	return &Response{success: false, errMsg: err.Error()}
}

// Param appends a scalar parameter to the response's <params> block.
func (r *Response) Param(tag, value string) *Response {
	r.params = append(r.params, element{tag: tag, text: value})
	return r
}

// ParamBool appends a boolean parameter rendered lowercase.
func (r *Response) ParamBool(tag string, value bool) *Response {
	return r.Param(tag, BoolToStr(value))
}

// ParamList appends a list parameter using the singular-child-tag
// convention: <tag><singular>v1</singular><singular>v2</singular></tag>.
func (r *Response) ParamList(tag string, values []string) *Response {
	singular := SingularName(tag)
	container := element{tag: tag}
	for _, v := range values {
		container.children = append(container.children, element{tag: singular, text: v})
	}
	r.params = append(r.params, container)
	return r
}

// ParamNode appends a container element whose children are flat tag/text
// pairs. Deeper shapes (get_fso's <dir>/<file> envelope, get_changes'
// <events><event>...) are built with ParamElem instead.
func (r *Response) ParamNode(tag string, children []ResponseField) *Response {
	container := element{tag: tag}
	for _, c := range children {
		container.children = append(container.children, element{tag: c.Tag, text: c.Text})
	}
	r.params = append(r.params, container)
	return r
}

// ResponseField is a single child element used with ParamNode.
type ResponseField struct {
	Tag  string
	Text string
}

// Elem is an exported element tree, used by callers (internal/fsalserver)
// that need to nest further than ParamNode's flat tag/text children allow
// — e.g. list_dir's <dirs><dir><rel-path/><create-timestamp/>...</dir></dirs>.
type Elem struct {
	Tag      string
	Text     string
	Children []Elem
}

func toInternal(e Elem) element {
	children := make([]element, len(e.Children))
	for i, c := range e.Children {
		children[i] = toInternal(c)
	}
	return element{tag: e.Tag, text: e.Text, children: children}
}

// ParamElem appends a fully-built Elem tree to the response's <params>
// block.
func (r *Response) ParamElem(e Elem) *Response {
	r.params = append(r.params, toInternal(e))
	return r
}

// Bytes renders the response document.
func (r *Response) Bytes() []byte {
	var b strings.Builder
	b.WriteString("<response><result>")
	fmt.Fprintf(&b, "<success>%s</success>", BoolToStr(r.success))
	if !r.success {
		fmt.Fprintf(&b, "<error>%s</error>", escape(r.errMsg))
	} else if len(r.params) > 0 {
		b.WriteString("<params>")
		for _, e := range r.params {
			writeElement(&b, e)
		}
		b.WriteString("</params>")
	}
	b.WriteString("</result></response>")
	return []byte(b.String())
}

func writeElement(b *strings.Builder, e element) {
	fmt.Fprintf(b, "<%s>", e.tag)
	if len(e.children) > 0 {
		for _, c := range e.children {
			writeElement(b, c)
		}
	} else {
		b.WriteString(escape(e.text))
	}
	fmt.Fprintf(b, "</%s>", e.tag)
}

func escape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return r.Replace(s)
}
