package scan

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func collect(t *testing.T, root string) []string {
	t.Helper()
	out := make(chan string, 64)
	errc := make(chan error, 1)
	go func() {
		errc <- Tree(context.Background(), root, out)
		close(out)
	}()

	var keys []string
	for key := range out {
		keys = append(keys, key)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Tree failed: %v", err)
	}
	sort.Strings(keys)
	return keys
}

func mkfile(t *testing.T, root string, parts ...string) {
	t.Helper()
	full := filepath.Join(append([]string{root}, parts...)...)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(full, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}

func TestTree(t *testing.T) {
	root := t.TempDir()

	// Two well-formed captures.
	mkfile(t, root, "archive", "2019", "201903", "20190301", "20190301123456", "stackoverflow.com", "questions", "1", "my-question")
	mkfile(t, root, "archive", "2019", "201903", "20190302", "20190302123456", "stackoverflow.com", "questions", "2", ".index")

	// Ignored: two files in the capture directory.
	mkfile(t, root, "archive", "2019", "201903", "20190303", "20190303123456", "stackoverflow.com", "questions", "3", "one")
	mkfile(t, root, "archive", "2019", "201903", "20190303", "20190303123456", "stackoverflow.com", "questions", "3", "two")

	// Ignored: non-numeric entry under questions.
	mkfile(t, root, "archive", "2019", "201903", "20190304", "20190304123456", "stackoverflow.com", "questions", "tagged", "go")

	// Ignored: question directory outside a questions parent.
	mkfile(t, root, "archive", "2019", "201903", "20190305", "20190305123456", "stackoverflow.com", "answers", "4", "leaf")

	keys := collect(t, root)
	want := []string{
		"archive/2019/201903/20190301/20190301123456/stackoverflow.com/questions/1/my-question",
		"archive/2019/201903/20190302/20190302123456/stackoverflow.com/questions/2/.index",
	}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestTreeEmptyRoot(t *testing.T) {
	if keys := collect(t, t.TempDir()); len(keys) != 0 {
		t.Errorf("empty tree yielded %v", keys)
	}
}

func TestTreeHonorsContext(t *testing.T) {
	root := t.TempDir()
	mkfile(t, root, "archive", "x", "questions", "1", "leaf")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan string) // unbuffered: a send would block forever
	if err := Tree(ctx, root, out); err != context.Canceled {
		t.Errorf("Tree = %v, want context.Canceled", err)
	}
}

func TestLines(t *testing.T) {
	input := "archive/a/questions/1/x\n\n  archive/b/questions/2/y  \n"
	out := make(chan string, 8)
	if err := Lines(context.Background(), strings.NewReader(input), out); err != nil {
		t.Fatalf("Lines failed: %v", err)
	}
	close(out)

	var keys []string
	for key := range out {
		keys = append(keys, key)
	}
	want := []string{"archive/a/questions/1/x", "archive/b/questions/2/y"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}
