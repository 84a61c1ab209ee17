package client_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nyasuto/strata/internal/client"
	"github.com/nyasuto/strata/internal/lsm"
	"github.com/nyasuto/strata/internal/server"
)

func startTestServer(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	tree, err := lsm.Open(lsm.Config{
		WALPath:             filepath.Join(dir, "wal.log"),
		SSTableDir:          filepath.Join(dir, "sstables"),
		MemTableMaxSize:     100,
		CompactionThreshold: 100,
		CompactionStrategy:  lsm.LevelBased,
	})
	if err != nil {
		t.Fatalf("lsm.Open: %v", err)
	}
	t.Cleanup(func() { _ = tree.Close() })

	s := server.New(tree)
	if err := s.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s.Addr().String()
}

func TestClient_WriteReadDelete(t *testing.T) {
	addr := startTestServer(t)
	c, err := client.Dial(addr, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.Write("a", "1"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	v, found, err := c.Read("a")
	if err != nil || !found || v != "1" {
		t.Fatalf("Read(a) = (%q, %v, %v), want (1, true, nil)", v, found, err)
	}
	if err := c.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, found, err = c.Read("a")
	if err != nil || found {
		t.Fatalf("Read(a) after delete = found=%v err=%v, want not-found", found, err)
	}
}

func TestParseScript_SkipsBlankAndCommentLines(t *testing.T) {
	cmds, err := client.ParseScript([]string{
		"# a comment",
		"",
		"write a 1",
		"read a",
		"delete a",
	})
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	if len(cmds) != 3 {
		t.Fatalf("len(cmds) = %d, want 3", len(cmds))
	}
}

func TestParseScript_RejectsUnknownCommand(t *testing.T) {
	if _, err := client.ParseScript([]string{"frobnicate a"}); err == nil {
		t.Fatal("ParseScript succeeded on an unknown verb, want error")
	}
}

func TestParseScript_RejectsWrongArgCount(t *testing.T) {
	if _, err := client.ParseScript([]string{"write onlykey"}); err == nil {
		t.Fatal("ParseScript succeeded on write with one argument, want error")
	}
	if _, err := client.ParseScript([]string{"read"}); err == nil {
		t.Fatal("ParseScript succeeded on read with no key, want error")
	}
}

func TestRunScript_SequentialIndependentResults(t *testing.T) {
	addr := startTestServer(t)
	c, err := client.Dial(addr, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = c.Close() }()

	cmds, err := client.ParseScript([]string{
		"write a 1",
		"write b 2",
		"read a",
		"delete a",
		"read a",
	})
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}

	results := client.RunScript(c, cmds)
	if len(results) != 5 {
		t.Fatalf("len(results) = %d, want 5", len(results))
	}
	if !results[2].Found || results[2].Value != "1" {
		t.Fatalf("results[2] = %+v, want found=true value=1", results[2])
	}
	if results[4].Found {
		t.Fatalf("results[4] = %+v, want not-found after delete", results[4])
	}
}
