package unpaywall

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("email") != "reviewer@example.org" {
			t.Errorf("missing email parameter")
		}
		w.Write([]byte(`{"best_oa_location":{"url_for_pdf":"https://repo.example.org/a.pdf","version":"publishedVersion"}}`))
	}))
	defer srv.Close()

	c := NewClient("reviewer@example.org", WithBaseURL(srv.URL))
	loc, err := c.Lookup(context.Background(), "10.17705/1cais.04607")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if loc.PDFURL != "https://repo.example.org/a.pdf" {
		t.Errorf("PDFURL = %q", loc.PDFURL)
	}
	if loc.Version != "publishedVersion" {
		t.Errorf("Version = %q", loc.Version)
	}
}

func TestLookupNoOpenAccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"best_oa_location":null}`))
	}))
	defer srv.Close()

	c := NewClient("reviewer@example.org", WithBaseURL(srv.URL))
	if _, err := c.Lookup(context.Background(), "10.9999/closed"); err != ErrNoOpenAccess {
		t.Errorf("err = %v, want ErrNoOpenAccess", err)
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-1.4 fake body"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "pdfs", "Webster2002.pdf")
	c := NewClient("reviewer@example.org")
	if err := c.Download(context.Background(), srv.URL+"/a.pdf", dest); err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	if string(data) != "%PDF-1.4 fake body" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestDownloadFailureLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "Webster2002.pdf")
	c := NewClient("reviewer@example.org")
	if err := c.Download(context.Background(), srv.URL+"/a.pdf", dest); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("destination should not exist, stat err = %v", err)
	}
}
