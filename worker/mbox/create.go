package mboxer

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/miolini/datacounter"

	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/lib/xdg"
)

// loadMailboxes reads an mbox file, or every *.mbox file of a directory.
// Mailboxes are named after the files.
func loadMailboxes(path string) (map[string][]*message, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	files := []string{path}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.mbox"))
		if err != nil {
			return nil, err
		}
	}
	mailboxes := make(map[string][]*message, len(files))
	for _, file := range files {
		messages, err := readFile(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		name := strings.TrimSuffix(filepath.Base(file), ".mbox")
		mailboxes[name] = messages
	}
	return mailboxes, nil
}

func readFile(path string) ([]*message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ctr := datacounter.NewReaderCounter(f)
	messages, err := Read(ctr)
	if err != nil {
		return nil, err
	}
	log.Debugf("mbox: %s: %d messages, %d bytes", path, len(messages), ctr.Count())
	return messages, nil
}

// sourcePath resolves mbox://~/path and mbox:///path
func sourcePath(u *url.URL) string {
	if u.Host == "~" {
		return xdg.ExpandHome("~", u.Path)
	}
	return filepath.Join(u.Host, u.Path)
}
