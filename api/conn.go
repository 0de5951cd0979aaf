package api

import (
	"bytes"
	"net"
)

// net/http answers malformed requests (400, 431, 505...) by writing a canned
// reply straight to the connection without calling any handler. corsConn
// patches the CORS headers into such replies on their way out.

var (
	statusLinePrefixes = [][]byte{[]byte("HTTP/1.1 4"), []byte("HTTP/1.1 5")}
	headerTerminator   = []byte("\r\n\r\n")
	allowOriginLine    = []byte("\r\nAccess-Control-Allow-Origin:")
	corsHeaderBlock    = []byte("Access-Control-Allow-Origin: " + AllowOrigin + "\r\n" +
		"Access-Control-Allow-Methods: " + AllowMethods + "\r\n" +
		"Access-Control-Allow-Headers: " + AllowHeaders + "\r\n")
)

type corsListener struct {
	net.Listener
}

func newCORSListener(ln net.Listener) net.Listener {
	return &corsListener{Listener: ln}
}

func (l *corsListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &corsConn{Conn: conn}, nil
}

type corsConn struct {
	net.Conn
}

// Write leaves handler responses alone: they already carry the headers from
// CORSMiddleware. Only an error status line whose complete header block lacks
// Access-Control-Allow-Origin is rewritten.
func (c *corsConn) Write(p []byte) (int, error) {
	patched, ok := withCORSHeaders(p)
	if !ok {
		return c.Conn.Write(p)
	}
	if _, err := c.Conn.Write(patched); err != nil {
		return 0, err
	}
	return len(p), nil
}

// CloseWrite lets net/http half-close before hanging up on an oversized request
func (c *corsConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.Conn.Close()
}

func withCORSHeaders(p []byte) ([]byte, bool) {
	if !hasErrorStatusLine(p) {
		return nil, false
	}
	end := bytes.Index(p, headerTerminator)
	if end < 0 {
		return nil, false
	}
	if bytes.Contains(p[:end], allowOriginLine) {
		return nil, false
	}
	lineEnd := bytes.Index(p, []byte("\r\n"))

	out := make([]byte, 0, len(p)+len(corsHeaderBlock))
	out = append(out, p[:lineEnd+2]...)
	out = append(out, corsHeaderBlock...)
	out = append(out, p[lineEnd+2:]...)
	return out, true
}

func hasErrorStatusLine(p []byte) bool {
	for _, prefix := range statusLinePrefixes {
		if bytes.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
