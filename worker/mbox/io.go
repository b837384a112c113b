package mboxer

import (
	"errors"
	"io"
	"time"

	"github.com/emersion/go-mbox"
)

// Read splits an mbox stream into messages
func Read(r io.Reader) ([]*message, error) {
	mbr := mbox.NewReader(r)
	var messages []*message
	for {
		msg, err := mbr.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(msg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, &message{content: content})
	}
	return messages, nil
}

// Write appends one message to an mbox stream
func Write(w io.Writer, reader io.Reader, from string, date time.Time) error {
	wc := mbox.NewWriter(w)
	mw, err := wc.CreateMessage(from, date)
	if err != nil {
		return err
	}
	if _, err := io.Copy(mw, reader); err != nil {
		return err
	}
	return wc.Close()
}
