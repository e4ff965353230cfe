package endpoint

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
)

// StringRenderer writes a string body with an optional status and content
// type. An empty ContentType defaults to "text/plain; charset=utf-8".
type StringRenderer struct {
	Status      int
	Body        string
	ContentType string
}

func setContentType(w http.ResponseWriter, contentType string) {
	// Leave any Content-Type already chosen by an outer layer alone.
	if w.Header().Get("Content-Type") == "" {
		if contentType == "" {
			contentType = "text/plain; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
	}
}

func (sr *StringRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	setContentType(w, sr.ContentType)
	status := sr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if sr.Body == "" {
		return nil
	}
	_, err := w.Write([]byte(sr.Body))
	return err
}

// HTMLRenderer is a StringRenderer that forces an HTML content type.
type HTMLRenderer struct {
	StringRenderer
}

func (hr *HTMLRenderer) Render(w http.ResponseWriter, r *http.Request) error {
	hr.StringRenderer.ContentType = "text/html; charset=utf-8"
	return hr.StringRenderer.Render(w, r)
}

// NoContentRenderer writes a status code and no body.
// A zero Status defaults to http.StatusNoContent.
type NoContentRenderer struct {
	Status int
}

func (ncr *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	status := ncr.Status
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
	return nil
}

// RedirectRenderer redirects the client to URL.
// A zero Status defaults to http.StatusTemporaryRedirect.
type RedirectRenderer struct {
	URL    string
	Status int
}

func (rr *RedirectRenderer) Render(w http.ResponseWriter, r *http.Request) error {
	status := rr.Status
	if status == 0 {
		status = http.StatusTemporaryRedirect
	}
	http.Redirect(w, r, rr.URL, status)
	return nil
}

// HTMLTemplateRenderer executes Template with Values into an HTML response.
// The template runs into a buffer first, so an execution error surfaces as
// a regular endpoint error instead of a half-written page.
type HTMLTemplateRenderer struct {
	Status   int
	Template *template.Template
	Values   any
}

func (tr *HTMLTemplateRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	var buf bytes.Buffer
	if err := tr.Template.Execute(&buf, tr.Values); err != nil {
		return Error(http.StatusInternalServerError, "template error", err)
	}
	setContentType(w, "text/html; charset=utf-8")
	status := tr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// JSONRenderer serializes Value as JSON.
//
// Encoding errors after WriteHeader are returned as best-effort signals;
// the status line is already on the wire by then.
type JSONRenderer struct {
	Status int
	Value  any
}

func (jr *JSONRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	status := jr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(jr.Value)
}
