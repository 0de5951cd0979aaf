package api

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"

	"corsserve/filestore"
)

const indexPage = "index.html"

// handleStatic resolves the request path under the document root and serves
// a file, an index page or a directory listing
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name, err := filestore.Clean(r.URL.Path)
	if err != nil {
		s.sendFileError(w, r, err)
		return
	}

	f, info, err := s.root.Open(name)
	if err != nil {
		s.sendFileError(w, r, err)
		return
	}
	defer f.Close()

	if !info.IsDir() {
		// A file is not a directory; "/page.html/" would break relative links
		if strings.HasSuffix(r.URL.Path, "/") {
			SendNotFound(w, r.URL.Path)
			return
		}
		s.serveFile(w, r, f, info)
		return
	}

	if !strings.HasSuffix(r.URL.Path, "/") {
		redirectToSlash(w, r, name)
		return
	}

	indexName := path.Join(name, indexPage)
	indexInfo, err := s.root.Stat(indexName)
	switch {
	case err == nil && !indexInfo.IsDir():
		index, indexInfo, err := s.root.Open(indexName)
		if err != nil {
			s.sendFileError(w, r, err)
			return
		}
		defer index.Close()
		s.serveFile(w, r, index, indexInfo)
		return
	case err != nil && !errors.Is(err, filestore.ErrNotFound):
		s.sendFileError(w, r, err)
		return
	}

	s.serveListing(w, r, name)
}

// serveFile streams the file with http.ServeContent, which infers the content
// type and handles HEAD, ranges and conditional requests. A read failure before
// the status line becomes a 500; after it, the connection is aborted.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, f io.ReadSeeker, info fs.FileInfo) {
	content := &errorTrackingReader{ReadSeeker: f}
	cw := &contentWriter{trackingWriter: newTrackingWriter(w), content: content}

	http.ServeContent(cw, r, info.Name(), info.ModTime(), content)

	if content.err == nil {
		return
	}

	s.log.WithContext(r.Context()).Error("Failed to read file", map[string]interface{}{
		"error":  content.err.Error(),
		"path":   r.URL.Path,
		"status": cw.Status(),
	})
	if cw.failed {
		return
	}
	if cw.wroteHeader {
		panic(http.ErrAbortHandler)
	}
	SendInternalServerError(cw.trackingWriter)
}

// contentWriter swaps a success status for a 500 when the content reader has
// already failed, e.g. while ServeContent sniffs the content type
type contentWriter struct {
	*trackingWriter
	content *errorTrackingReader
	failed  bool
}

func (c *contentWriter) WriteHeader(code int) {
	if c.failed {
		return
	}
	if c.content.err != nil && code < http.StatusMultipleChoices {
		c.failed = true
		SendInternalServerError(c.trackingWriter)
		return
	}
	c.trackingWriter.WriteHeader(code)
}

func (c *contentWriter) Write(b []byte) (int, error) {
	if c.failed {
		// The 500 body is already out; drop whatever ServeContent still sends
		return len(b), nil
	}
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
		if c.failed {
			return len(b), nil
		}
	}
	return c.trackingWriter.Write(b)
}

func (s *Server) sendFileError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.log.WithContext(r.Context())
	switch {
	case errors.Is(err, filestore.ErrOutsideRoot):
		log.Warn("Rejected path outside document root", map[string]interface{}{
			"path": r.URL.Path,
		})
		SendNotFound(w, r.URL.Path)
	case errors.Is(err, filestore.ErrNotFound):
		SendNotFound(w, r.URL.Path)
	case errors.Is(err, filestore.ErrForbidden):
		log.Warn("Permission denied", map[string]interface{}{
			"path": r.URL.Path,
		})
		SendForbidden(w)
	default:
		log.Error("Failed to resolve path", map[string]interface{}{
			"error": err.Error(),
			"path":  r.URL.Path,
		})
		SendInternalServerError(w)
	}
}

// redirectToSlash builds the target from the cleaned name so a request
// like "//host/dir" cannot become a redirect to another host
func redirectToSlash(w http.ResponseWriter, r *http.Request, name string) {
	target := (&url.URL{Path: "/" + name + "/"}).EscapedPath()
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusMovedPermanently)
}

// errorTrackingReader remembers the first non-EOF read error, which
// http.ServeContent otherwise swallows
type errorTrackingReader struct {
	io.ReadSeeker
	err error
}

func (e *errorTrackingReader) Read(p []byte) (int, error) {
	n, err := e.ReadSeeker.Read(p)
	if err != nil && err != io.EOF && e.err == nil {
		e.err = err
	}
	return n, err
}
