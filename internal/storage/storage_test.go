package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func Test_CheckFile_Whitelist(t *testing.T) {
	cases := []struct {
		name string
		size int64
		ok   bool
	}{
		{"brief.pdf", 10, true},
		{"Scan.JPG", 10, true},
		{"ledger.xlsx", 10, true},
		{"script.php", 10, false},
		{"archive.tar.gz", 10, false},
		{"noext", 10, false},
		{"empty.pdf", 0, false},
		{"huge.pdf", 3 << 20, false},
	}
	for _, tc := range cases {
		_, err := CheckFile(tc.name, tc.size, 2<<20, AllowedExtensions)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok {
			var ue *UploadError
			if !errors.As(err, &ue) {
				t.Fatalf("%s: expected UploadError, got %v", tc.name, err)
			}
		}
	}
}

func Test_NewKey_Randomized(t *testing.T) {
	a := NewKey(CategoryDocuments, ".pdf")
	b := NewKey(CategoryDocuments, ".pdf")
	if a == b {
		t.Fatalf("keys should differ: %s", a)
	}
	if !strings.HasPrefix(a, "documents/") || !strings.HasSuffix(a, ".pdf") {
		t.Fatalf("unexpected key shape: %s", a)
	}
}

func Test_ContentType(t *testing.T) {
	for ext, want := range map[string]string{
		".pdf":  "application/pdf",
		".PNG":  "image/png",
		".jpeg": "image/jpeg",
		".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		".zzq":  "application/octet-stream",
	} {
		if got := ContentType(ext); got != want {
			t.Fatalf("ContentType(%q) = %q, want %q", ext, got, want)
		}
	}
	if got := ContentType(".txt"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("ContentType(.txt) = %q", got)
	}
}

func Test_Local_SaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	key := NewKey(CategoryMessages, ".txt")
	if err := l.Save(ctx, key, strings.NewReader("hello"), "text/plain"); err != nil {
		t.Fatalf("save: %v", err)
	}

	rc, err := l.Open(ctx, key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "hello" {
		t.Fatalf("content = %q", b)
	}

	if err := l.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := l.Open(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// deleting twice is fine
	if err := l.Delete(ctx, key); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func Test_Local_RejectsTraversal(t *testing.T) {
	l, _ := NewLocal(t.TempDir())
	if err := l.Save(context.Background(), "../escape.txt", strings.NewReader("x"), ""); err == nil {
		t.Fatal("expected traversal key to be rejected")
	}
}

func Test_Supabase_SaveAndSign(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		switch {
		case strings.HasPrefix(r.URL.Path, "/storage/v1/object/sign/"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"signedURL":"/object/sign/bucket/documents/a.pdf?token=t"}`)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	s := NewSupabase(srv.URL, "secret", "bucket")
	ctx := context.Background()

	if err := s.Save(ctx, "documents/a.pdf", strings.NewReader("pdf"), "application/pdf"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if gotAuth != "Bearer secret" || gotPath != "/storage/v1/object/bucket/documents/a.pdf" {
		t.Fatalf("unexpected request auth=%q path=%q", gotAuth, gotPath)
	}

	url, err := s.URL(ctx, "documents/a.pdf")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if url != srv.URL+"/storage/v1/object/sign/bucket/documents/a.pdf?token=t" {
		t.Fatalf("signed url = %s", url)
	}

	// 404 on delete is treated as already gone
	if err := s.Delete(ctx, "documents/a.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
