// Package client is a thin Go client for the FSAL wire protocol: dial the
// daemon's Unix socket, send one NUL-terminated XML request, read one
// NUL-terminated XML response.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/Othernet-Project/fsal/internal/fsobject"
	"github.com/Othernet-Project/fsal/internal/wire"
)

// Client dials socketPath for every call; it holds no persistent
// connection, since the daemon serves one request per connection.
type Client struct {
	socketPath string
	dialer     net.Dialer
}

// New builds a Client bound to the daemon's Unix domain socket.
func New(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

type kv struct {
	tag   string
	value string
}

func (c *Client) call(ctx context.Context, commandType string, params []kv, lists map[string][]string) (*wire.Node, error) {
	conn, err := c.dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("client: connect to %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	body := buildRequest(commandType, params, lists)
	if err := wire.WriteFrame(conn, body); err != nil {
		return nil, fmt.Errorf("client: send request: %w", err)
	}

	raw, err := wire.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}

	root, err := wire.ParseNode(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("client: parse response: %w", err)
	}
	result := root.Child("result")
	if result == nil {
		return nil, errors.New("client: response missing <result>")
	}
	if !wire.StrToBool(result.Child("success").TrimmedText()) {
		return nil, errors.New(result.Child("error").TrimmedText())
	}
	return result.Child("params"), nil
}

// send writes a request without waiting for a reply, for the asynchronous
// commands the daemon executes without writing a response.
func (c *Client) send(ctx context.Context, commandType string, params []kv) error {
	conn, err := c.dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("client: connect to %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := wire.WriteFrame(conn, buildRequest(commandType, params, nil)); err != nil {
		return fmt.Errorf("client: send request: %w", err)
	}
	return nil
}

func buildRequest(commandType string, params []kv, lists map[string][]string) []byte {
	var b strings.Builder
	b.WriteString("<request><command><type>")
	b.WriteString(escapeXML(commandType))
	b.WriteString("</type><params>")
	for _, p := range params {
		fmt.Fprintf(&b, "<%s>%s</%s>", p.tag, escapeXML(p.value), p.tag)
	}
	for tag, values := range lists {
		singular := wire.SingularName(tag)
		fmt.Fprintf(&b, "<%s>", tag)
		for _, v := range values {
			fmt.Fprintf(&b, "<%s>%s</%s>", singular, escapeXML(v), singular)
		}
		fmt.Fprintf(&b, "</%s>", tag)
	}
	b.WriteString("</params></command></request>")
	return []byte(b.String())
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// ListDir lists the direct children of path.
func (c *Client) ListDir(ctx context.Context, path string) (basePath string, dirs, files []fsobject.Object, err error) {
	node, err := c.call(ctx, "list_dir", []kv{{"path", path}}, nil)
	if err != nil {
		return "", nil, nil, err
	}
	basePath = node.Child("base-path").TrimmedText()
	dirs = parseObjects(node.Child("dirs"), basePath, true)
	files = parseObjects(node.Child("files"), basePath, false)
	return basePath, dirs, files, nil
}

// Exists reports whether path is present, optionally bypassing the index
// (unindexed) to check disk directly.
func (c *Client) Exists(ctx context.Context, path string, unindexed bool) (bool, error) {
	node, err := c.call(ctx, "exists", []kv{{"path", path}, {"unindexed", wire.BoolToStr(unindexed)}}, nil)
	if err != nil {
		return false, err
	}
	return wire.StrToBool(node.Child("exists").TrimmedText()), nil
}

// IsDir reports whether path is an indexed directory.
func (c *Client) IsDir(ctx context.Context, path string) (bool, error) {
	node, err := c.call(ctx, "isdir", []kv{{"path", path}}, nil)
	if err != nil {
		return false, err
	}
	return wire.StrToBool(node.Child("isdir").TrimmedText()), nil
}

// IsFile reports whether path is an indexed file.
func (c *Client) IsFile(ctx context.Context, path string) (bool, error) {
	node, err := c.call(ctx, "isfile", []kv{{"path", path}}, nil)
	if err != nil {
		return false, err
	}
	return wire.StrToBool(node.Child("isfile").TrimmedText()), nil
}

// Remove deletes path from disk and the index.
func (c *Client) Remove(ctx context.Context, path string) error {
	_, err := c.call(ctx, "remove", []kv{{"path", path}}, nil)
	return err
}

// Search runs a keyword search, returning whether query was itself an exact
// indexed directory match (in which case dirs/files is that directory's
// listing).
func (c *Client) Search(ctx context.Context, query string, wholeWords bool, excludes []string) (isMatch bool, dirs, files []fsobject.Object, err error) {
	node, err := c.call(ctx, "search",
		[]kv{{"query", query}, {"whole_words", wire.BoolToStr(wholeWords)}},
		map[string][]string{"excludes": excludes})
	if err != nil {
		return false, nil, nil, err
	}
	basePath := node.Child("base-path").TrimmedText()
	isMatch = wire.StrToBool(node.Child("is-match").TrimmedText())
	dirs = parseObjects(node.Child("dirs"), basePath, true)
	files = parseObjects(node.Child("files"), basePath, false)
	return isMatch, dirs, files, nil
}

// GetFSO resolves path to its indexed object.
func (c *Client) GetFSO(ctx context.Context, path string) (fsobject.Object, error) {
	node, err := c.call(ctx, "get_fso", []kv{{"path", path}}, nil)
	if err != nil {
		return fsobject.Object{}, err
	}
	basePath := node.Child("base-path").TrimmedText()
	if dir := node.Child("dir"); dir != nil {
		return objectFromNode(dir, basePath, true)
	}
	if file := node.Child("file"); file != nil {
		return objectFromNode(file, basePath, false)
	}
	return fsobject.Object{}, errors.New("client: get_fso response missing <dir>/<file>")
}

// Transfer moves src (an absolute external path) into dest (a path relative
// to the daemon's default transfer base).
func (c *Client) Transfer(ctx context.Context, src, dest string) error {
	_, err := c.call(ctx, "transfer", []kv{{"src", src}, {"dest", dest}}, nil)
	return err
}

// Event mirrors a single change event returned by GetChanges.
type Event struct {
	Type  string
	Src   string
	IsDir bool
}

// GetChanges returns up to limit pending change events without removing
// them.
func (c *Client) GetChanges(ctx context.Context, limit int) ([]Event, error) {
	node, err := c.call(ctx, "get_changes", []kv{{"limit", strconv.Itoa(limit)}}, nil)
	if err != nil {
		return nil, err
	}
	events := node.Child("events")
	if events == nil {
		return nil, nil
	}
	out := make([]Event, 0, len(events.Children))
	for _, e := range events.ChildrenWithTag("event") {
		out = append(out, Event{
			Type:  e.Child("type").TrimmedText(),
			Src:   e.Child("src").TrimmedText(),
			IsDir: wire.StrToBool(e.Child("is_dir").TrimmedText()),
		})
	}
	return out, nil
}

// ConfirmChanges drains up to limit of the oldest pending change events.
func (c *Client) ConfirmChanges(ctx context.Context, limit int) error {
	_, err := c.call(ctx, "confirm_changes", []kv{{"limit", strconv.Itoa(limit)}}, nil)
	return err
}

// Refresh schedules a full reconcile.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.call(ctx, "refresh", nil, nil)
	return err
}

// RefreshPath schedules a reconcile rooted at path.
func (c *Client) RefreshPath(ctx context.Context, path string) error {
	_, err := c.call(ctx, "refresh_path", []kv{{"path", path}}, nil)
	return err
}

// ListBasePaths returns the daemon's configured base paths in order.
func (c *Client) ListBasePaths(ctx context.Context) ([]string, error) {
	node, err := c.call(ctx, "list_base_paths", nil, nil)
	if err != nil {
		return nil, err
	}
	container := node.Child("paths")
	if container == nil {
		return nil, nil
	}
	var out []string
	for _, p := range container.ChildrenWithTag("path") {
		out = append(out, p.TrimmedText())
	}
	return out, nil
}

// GetPathSize returns the recursive disk size of path.
func (c *Client) GetPathSize(ctx context.Context, path string) (int64, error) {
	node, err := c.call(ctx, "get_path_size", []kv{{"path", path}}, nil)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(node.Child("size").TrimmedText(), 10, 64)
}

// Consolidate schedules an asynchronous empty-directory sweep across every
// configured base. The daemon writes no response for this command.
func (c *Client) Consolidate(ctx context.Context) error {
	return c.send(ctx, "consolidate", nil)
}

// Copy schedules an asynchronous copy of source to dest. The daemon writes
// no response for this command.
func (c *Client) Copy(ctx context.Context, source, dest string) error {
	return c.send(ctx, "copy", []kv{{"source", source}, {"dest", dest}})
}

func parseObjects(container *wire.Node, basePath string, isDir bool) []fsobject.Object {
	if container == nil {
		return nil
	}
	tag := "file"
	if isDir {
		tag = "dir"
	}
	var out []fsobject.Object
	for _, n := range container.ChildrenWithTag(tag) {
		obj, err := objectFromNode(n, basePath, isDir)
		if err != nil {
			continue
		}
		out = append(out, obj)
	}
	return out
}

func objectFromNode(n *wire.Node, basePath string, isDir bool) (fsobject.Object, error) {
	relPath := n.Child("rel-path").TrimmedText()
	var size int64
	if sizeNode := n.Child("size"); sizeNode != nil {
		parsed, err := strconv.ParseInt(sizeNode.TrimmedText(), 10, 64)
		if err != nil {
			return fsobject.Object{}, err
		}
		size = parsed
	}
	return fsobject.FromWire(basePath, relPath, size, isDir,
		n.Child("create-timestamp").TrimmedText(), n.Child("modify-timestamp").TrimmedText())
}
