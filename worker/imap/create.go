package imap

// createMailbox creates a mailbox on the server and starts tracking it. The
// lock must be held.
func (w *IMAPWorker) createMailbox(name string) (*mailbox, error) {
	w.log.Debugf("creating mailbox %s", name)
	if err := w.client.Create(name); err != nil {
		return nil, err
	}
	// the server may have assigned special-use attributes
	if err := w.listMailboxes(); err != nil {
		return nil, err
	}
	return w.mailbox(name)
}
