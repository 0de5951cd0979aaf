package api

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"
	"path"

	"corsserve/filestore"

	"github.com/dustin/go-humanize"
)

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Directory listing for {{.Path}}</title>
</head>
<body>
<h1>Directory listing for {{.Path}}</h1>
<hr>
<table>
{{- if .Parent}}
<tr><td><a href="../">../</a></td><td></td><td></td></tr>
{{- end}}
{{- range .Entries}}
<tr><td><a href="{{.Href}}">{{.Display}}</a></td><td>{{.Size}}</td><td>{{.Modified}}</td></tr>
{{- end}}
</table>
<hr>
</body>
</html>
`))

type listingPage struct {
	Path    string
	Parent  bool
	Entries []listingEntry
}

type listingEntry struct {
	Href     string
	Display  string
	Size     string
	Modified string
}

// serveListing renders an HTML index of a directory under the root
func (s *Server) serveListing(w http.ResponseWriter, r *http.Request, name string) {
	entries, err := s.root.ReadDir(name)
	if err != nil {
		s.sendFileError(w, r, err)
		return
	}

	page := listingPage{
		Path:    displayPath(name),
		Parent:  name != ".",
		Entries: make([]listingEntry, 0, len(entries)),
	}
	for _, e := range entries {
		page.Entries = append(page.Entries, newListingEntry(e))
	}

	var buf bytes.Buffer
	if err := listingTemplate.Execute(&buf, page); err != nil {
		s.log.WithContext(r.Context()).Error("Failed to render directory listing", map[string]interface{}{
			"error": err.Error(),
			"path":  r.URL.Path,
		})
		SendInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func newListingEntry(e filestore.Entry) listingEntry {
	display := e.Name
	if e.IsDir {
		display += "/"
	}
	// url.URL.String prefixes "./" when the first segment has a colon,
	// so names like "a:b" are not read as a scheme
	href := (&url.URL{Path: display}).String()

	entry := listingEntry{
		Href:    href,
		Display: display,
		Size:    "-",
	}
	if e.Info != nil {
		if !e.IsDir {
			entry.Size = humanize.Bytes(uint64(e.Info.Size()))
		}
		entry.Modified = humanize.Time(e.Info.ModTime())
	}
	return entry
}

func displayPath(name string) string {
	if name == "." {
		return "/"
	}
	return path.Clean("/"+name) + "/"
}
