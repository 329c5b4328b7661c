package fsalserver

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Othernet-Project/fsal/internal/fsobject"
	"github.com/Othernet-Project/fsal/internal/wire"
)

type handlerFunc func(ctx context.Context, s *Server, req *wire.Request) *wire.Response
type asyncHandlerFunc func(ctx context.Context, s *Server, req *wire.Request)

// commandHandler maps a command type to either a synchronous handler (the
// common case) or an asynchronous one that runs without writing a
// response.
type commandHandler struct {
	sync    bool
	fn      handlerFunc
	asyncFn asyncHandlerFunc
}

// buildHandlers is the command-type -> handler table, built once at server
// construction.
func buildHandlers() map[string]commandHandler {
	return map[string]commandHandler{
		"list_dir":        {sync: true, fn: handleListDir},
		"exists":          {sync: true, fn: handleExists},
		"isdir":           {sync: true, fn: handleIsDir},
		"isfile":          {sync: true, fn: handleIsFile},
		"remove":          {sync: true, fn: handleRemove},
		"search":          {sync: true, fn: handleSearch},
		"get_fso":         {sync: true, fn: handleGetFSO},
		"transfer":        {sync: true, fn: handleTransfer},
		"get_changes":     {sync: true, fn: handleGetChanges},
		"confirm_changes": {sync: true, fn: handleConfirmChanges},
		"refresh":         {sync: true, fn: handleRefresh},
		"refresh_path":    {sync: true, fn: handleRefreshPath},
		"list_base_paths": {sync: true, fn: handleListBasePaths},
		"get_path_size":   {sync: true, fn: handleGetPathSize},
		"consolidate":     {sync: false, asyncFn: handleConsolidate},
		"copy":            {sync: false, asyncFn: handleCopy},
	}
}

func handleListDir(ctx context.Context, s *Server, req *wire.Request) *wire.Response {
	path := req.Param("path")
	ok, children := s.indexer.ListDir(ctx, path)
	if !ok {
		return wire.NewFailure(fmt.Errorf("not a directory or not found: %q", path))
	}
	dirs, files := splitKind(children)
	resp := wire.NewSuccess().Param("base-path", s.indexer.PrimaryBase())
	resp.ParamElem(objectsElem("dirs", dirs))
	resp.ParamElem(objectsElem("files", files))
	return resp
}

func handleExists(ctx context.Context, s *Server, req *wire.Request) *wire.Response {
	exists := s.indexer.Exists(ctx, req.Param("path"), req.ParamBool("unindexed"))
	return wire.NewSuccess().ParamBool("exists", exists)
}

func handleIsDir(ctx context.Context, s *Server, req *wire.Request) *wire.Response {
	return wire.NewSuccess().ParamBool("isdir", s.indexer.IsDir(ctx, req.Param("path")))
}

func handleIsFile(ctx context.Context, s *Server, req *wire.Request) *wire.Response {
	return wire.NewSuccess().ParamBool("isfile", s.indexer.IsFile(ctx, req.Param("path")))
}

func handleRemove(ctx context.Context, s *Server, req *wire.Request) *wire.Response {
	ok, msg := s.indexer.Remove(ctx, req.Param("path"))
	if !ok {
		return wire.NewFailure(errors.New(msg))
	}
	return wire.NewSuccess()
}

func handleSearch(ctx context.Context, s *Server, req *wire.Request) *wire.Response {
	query := req.Param("query")
	whole := req.ParamBool("whole_words")
	excludes := req.ParamList("excludes")
	result, err := s.indexer.Search(ctx, query, whole, excludes)
	if err != nil {
		return wire.NewFailure(err)
	}
	dirs, files := splitKind(result.Objects)
	resp := wire.NewSuccess().
		Param("base-path", s.indexer.PrimaryBase()).
		ParamBool("is-match", result.IsMatch)
	resp.ParamElem(objectsElem("dirs", dirs))
	resp.ParamElem(objectsElem("files", files))
	return resp
}

func handleGetFSO(ctx context.Context, s *Server, req *wire.Request) *wire.Response {
	path := req.Param("path")
	obj, ok := s.indexer.GetFSO(ctx, path)
	if !ok {
		return wire.NewFailure(fmt.Errorf("no such file or directory %q", path))
	}
	tag := "file"
	if obj.IsDir() {
		tag = "dir"
	}
	resp := wire.NewSuccess().Param("base-path", s.indexer.PrimaryBase())
	resp.ParamElem(objectElem(tag, obj))
	return resp
}

func handleTransfer(ctx context.Context, s *Server, req *wire.Request) *wire.Response {
	ok, msg := s.indexer.Transfer(ctx, req.Param("src"), req.Param("dest"))
	if !ok {
		return wire.NewFailure(errors.New(msg))
	}
	return wire.NewSuccess()
}

func handleGetChanges(ctx context.Context, s *Server, req *wire.Request) *wire.Response {
	limit := parseIntParam(req.Param("limit"))
	events, err := s.indexer.GetChanges(ctx, limit)
	if err != nil {
		return wire.NewFailure(err)
	}
	container := wire.Elem{Tag: "events"}
	for _, e := range events {
		container.Children = append(container.Children, wire.Elem{Tag: "event", Children: []wire.Elem{
			{Tag: "type", Text: string(e.Type)},
			{Tag: "src", Text: e.Src},
			{Tag: "is_dir", Text: wire.BoolToStr(e.IsDir)},
		}})
	}
	return wire.NewSuccess().ParamElem(container)
}

func handleConfirmChanges(ctx context.Context, s *Server, req *wire.Request) *wire.Response {
	limit := parseIntParam(req.Param("limit"))
	if err := s.indexer.ConfirmChanges(ctx, limit); err != nil {
		return wire.NewFailure(err)
	}
	return wire.NewSuccess()
}

func handleRefresh(ctx context.Context, s *Server, req *wire.Request) *wire.Response {
	s.indexer.Refresh()
	return wire.NewSuccess()
}

func handleRefreshPath(ctx context.Context, s *Server, req *wire.Request) *wire.Response {
	ok, msg := s.indexer.RefreshPath(req.Param("path"))
	if !ok {
		return wire.NewFailure(errors.New(msg))
	}
	return wire.NewSuccess()
}

func handleListBasePaths(ctx context.Context, s *Server, req *wire.Request) *wire.Response {
	return wire.NewSuccess().ParamList("paths", s.indexer.ListBasePaths())
}

func handleGetPathSize(ctx context.Context, s *Server, req *wire.Request) *wire.Response {
	size, err := s.indexer.GetPathSize(req.Param("path"))
	if err != nil {
		return wire.NewFailure(err)
	}
	return wire.NewSuccess().Param("size", strconv.FormatInt(size, 10))
}

func handleConsolidate(ctx context.Context, s *Server, req *wire.Request) {
	s.indexer.Consolidate()
}

func handleCopy(ctx context.Context, s *Server, req *wire.Request) {
	s.indexer.Copy(req.Param("source"), req.Param("dest"))
}

func parseIntParam(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func splitKind(objs []fsobject.Object) (dirs, files []fsobject.Object) {
	for _, o := range objs {
		if o.IsDir() {
			dirs = append(dirs, o)
		} else {
			files = append(files, o)
		}
	}
	return dirs, files
}

// objectElem builds a <dir>/<file> envelope: rel-path, create/modify
// timestamps, plus size on file nodes only.
func objectElem(tag string, obj fsobject.Object) wire.Elem {
	w := obj.ToWire()
	children := []wire.Elem{
		{Tag: "rel-path", Text: w.RelPath},
		{Tag: "create-timestamp", Text: w.CreateTimestamp},
		{Tag: "modify-timestamp", Text: w.ModifyTimestamp},
	}
	if w.Size != nil {
		children = append(children, wire.Elem{Tag: "size", Text: strconv.FormatInt(*w.Size, 10)})
	}
	return wire.Elem{Tag: tag, Children: children}
}

// objectsElem builds a <dirs>/<files> container of <dir>/<file> envelopes
// using the wire protocol's singular-child-tag convention.
func objectsElem(tag string, objs []fsobject.Object) wire.Elem {
	singular := wire.SingularName(tag)
	container := wire.Elem{Tag: tag}
	for _, o := range objs {
		container.Children = append(container.Children, objectElem(singular, o))
	}
	return container
}
