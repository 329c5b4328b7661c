package wire

import (
	"bytes"
	"fmt"
)

// Request is a parsed <request><command>...</command></request> document:
// the command type and its raw <params> node, left as a Node so handlers
// read exactly the fields their command needs.
type Request struct {
	Type   string
	Params *Node
}

// ParseRequest parses a raw (NUL-stripped) request frame.
func ParseRequest(raw []byte) (*Request, error) {
	root, err := ParseNode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if root.Tag != "request" {
		return nil, fmt.Errorf("wire: expected <request> root, got <%s>", root.Tag)
	}
	cmd := root.Child("command")
	if cmd == nil {
		return nil, fmt.Errorf("wire: request missing <command>")
	}
	typeNode := cmd.Child("type")
	if typeNode == nil {
		return nil, fmt.Errorf("wire: command missing <type>")
	}
	return &Request{
		Type:   typeNode.TrimmedText(),
		Params: cmd.Child("params"),
	}, nil
}

// Param returns the trimmed text of a scalar parameter.
func (r *Request) Param(name string) string {
	if r.Params == nil {
		return ""
	}
	return r.Params.Child(name).TrimmedText()
}

// ParamBool returns a boolean parameter.
func (r *Request) ParamBool(name string) bool {
	return StrToBool(r.Param(name))
}

// ParamList returns a list parameter: the children of the named container
// tag, whose item tag is the singular form of the container's tag.
func (r *Request) ParamList(name string) []string {
	if r.Params == nil {
		return nil
	}
	container := r.Params.Child(name)
	if container == nil {
		return nil
	}
	singular := SingularName(name)
	var out []string
	for _, child := range container.ChildrenWithTag(singular) {
		out = append(out, child.TrimmedText())
	}
	return out
}
