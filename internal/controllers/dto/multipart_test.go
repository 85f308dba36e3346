package dto

import (
	"bytes"
	"io"
	"mime/multipart"
	stdhttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

type formFile struct {
	field    string
	filename string
	content  string
}

func newMultipartRequest(t *testing.T, files []formFile, values map[string][]string) *stdhttp.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := io.WriteString(part, f.content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	for field, vals := range values {
		for _, v := range vals {
			if err := w.WriteField(field, v); err != nil {
				t.Fatalf("write field: %v", err)
			}
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest("POST", "/v1/properties/x/video", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestStageVideoUpload_StagesSourceFile(t *testing.T) {
	scratchRoot := t.TempDir()
	r := newMultipartRequest(t, []formFile{{field: videoFileField, filename: "walkthrough.MP4", content: "raw-bytes"}}, nil)

	job, err := StageVideoUpload(r, uuid.New(), scratchRoot)
	if err != nil {
		t.Fatalf("StageVideoUpload: %v", err)
	}
	if !strings.HasPrefix(job.ScratchDir, scratchRoot) {
		t.Errorf("scratch dir %s not under root %s", job.ScratchDir, scratchRoot)
	}
	if filepath.Dir(job.SourcePath) != job.ScratchDir {
		t.Errorf("source %s not inside scratch dir %s", job.SourcePath, job.ScratchDir)
	}
	data, err := os.ReadFile(job.SourcePath)
	if err != nil {
		t.Fatalf("read staged source: %v", err)
	}
	if string(data) != "raw-bytes" {
		t.Errorf("staged content = %q", data)
	}
	if job.OriginalFileName != "walkthrough.MP4" {
		t.Errorf("original name = %s", job.OriginalFileName)
	}
}

func TestStageVideoUpload_RequiresVideoField(t *testing.T) {
	r := newMultipartRequest(t, []formFile{{field: "file", filename: "a.mp4", content: "x"}}, nil)
	if _, err := StageVideoUpload(r, uuid.New(), t.TempDir()); err == nil {
		t.Fatal("expected error when video field missing")
	}
}

func TestStageVideoUpload_RejectsUnknownExtension(t *testing.T) {
	scratchRoot := t.TempDir()
	r := newMultipartRequest(t, []formFile{{field: videoFileField, filename: "notes.txt", content: "x"}}, nil)
	if _, err := StageVideoUpload(r, uuid.New(), scratchRoot); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
	entries, _ := os.ReadDir(scratchRoot)
	if len(entries) != 0 {
		t.Errorf("nothing should be staged on rejection, got %d entries", len(entries))
	}
}

func TestStageImageReconcile_ParsesAllOperations(t *testing.T) {
	scratchRoot := t.TempDir()
	r := newMultipartRequest(t,
		[]formFile{
			{field: newImageField, filename: "kitchen.jpg", content: "k"},
			{field: newImageField, filename: "garden.png", content: "g"},
			{field: replacePrefix + "properties/p/images/1-old.jpg", filename: "new-front.webp", content: "f"},
		},
		map[string][]string{removedField: {"properties/p/images/2-back.jpg"}},
	)

	input, err := StageImageReconcile(r, uuid.New(), scratchRoot)
	if err != nil {
		t.Fatalf("StageImageReconcile: %v", err)
	}
	if len(input.NewImages) != 2 {
		t.Errorf("new images = %d", len(input.NewImages))
	}
	if len(input.Replacements) != 1 {
		t.Fatalf("replacements = %d", len(input.Replacements))
	}
	if _, ok := input.Replacements["properties/p/images/1-old.jpg"]; !ok {
		t.Errorf("replacement target lost: %v", input.Replacements)
	}
	if len(input.RemovedKeys) != 1 || input.RemovedKeys[0] != "properties/p/images/2-back.jpg" {
		t.Errorf("removed keys = %v", input.RemovedKeys)
	}
	for _, img := range input.NewImages {
		if _, err := os.Stat(img.LocalPath); err != nil {
			t.Errorf("staged image missing: %v", err)
		}
	}
}

func TestStageImageReconcile_EmptyRequestRejected(t *testing.T) {
	r := newMultipartRequest(t, nil, nil)
	if _, err := StageImageReconcile(r, uuid.New(), t.TempDir()); err == nil {
		t.Fatal("expected error for empty reconcile request")
	}
}

func TestStageImageReconcile_UnknownFieldRejected(t *testing.T) {
	scratchRoot := t.TempDir()
	r := newMultipartRequest(t, []formFile{{field: "attachment", filename: "a.jpg", content: "x"}}, nil)
	if _, err := StageImageReconcile(r, uuid.New(), scratchRoot); err == nil {
		t.Fatal("expected error for unknown file field")
	}
}

// 中途出错时已落盘的暂存文件要被回收。
func TestStageImageReconcile_BadExtensionCleansStaged(t *testing.T) {
	scratchRoot := t.TempDir()
	r := newMultipartRequest(t, []formFile{
		{field: newImageField, filename: "ok.jpg", content: "x"},
		{field: newImageField, filename: "bad.bmp", content: "y"},
	}, nil)

	if _, err := StageImageReconcile(r, uuid.New(), scratchRoot); err == nil {
		t.Fatal("expected error for unsupported image type")
	}
	entries, _ := os.ReadDir(scratchRoot)
	if len(entries) != 0 {
		t.Errorf("staged files should be cleaned on failure, got %d entries", len(entries))
	}
}
