// Package extensions implements the IMAP extensions go-imap lacks
package extensions

import (
	"fmt"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/responses"
	"github.com/emersion/go-imap/utf7"
)

// ListStatusClient issues LIST-STATUS commands (RFC 5819)
type ListStatusClient struct {
	c *client.Client
}

func NewListStatusClient(c *client.Client) *ListStatusClient {
	return &ListStatusClient{c}
}

func (c *ListStatusClient) SupportListStatus() (bool, error) {
	return c.c.Support("LIST-STATUS")
}

// ListStatus returns the status of the mailboxes matching name in a single
// round trip
func (c *ListStatusClient) ListStatus(
	ref string, name string, items []imap.StatusItem,
) ([]*imap.MailboxStatus, error) {
	switch c.c.State() {
	case imap.AuthenticatedState, imap.SelectedState:
	default:
		return nil, client.ErrNotLoggedIn
	}
	cmd := &listStatusCommand{reference: ref, mailbox: name, items: items}
	res := &listStatusResponse{}
	status, err := c.c.Execute(cmd, res)
	if err != nil {
		return nil, err
	}
	return res.statuses, status.Err()
}

type listStatusCommand struct {
	reference string
	mailbox   string
	items     []imap.StatusItem
}

func (cmd *listStatusCommand) Command() *imap.Command {
	enc := utf7.Encoding.NewEncoder()
	ref, _ := enc.String(cmd.reference)
	mailbox, _ := enc.String(cmd.mailbox)

	items := make([]string, 0, len(cmd.items))
	for _, item := range cmd.items {
		items = append(items, string(item))
	}
	args := fmt.Sprintf("RETURN (STATUS (%s))", strings.Join(items, " "))
	return &imap.Command{
		Name:      "LIST",
		Arguments: []interface{}{ref, mailbox, imap.RawString(args)},
	}
}

// listStatusResponse collects the STATUS responses, LIST ones are ignored
type listStatusResponse struct {
	statuses []*imap.MailboxStatus
}

func (r *listStatusResponse) Handle(resp imap.Resp) error {
	name, _, ok := imap.ParseNamedResp(resp)
	if !ok {
		return responses.ErrUnhandled
	}
	switch name {
	case "LIST":
		return nil
	case "STATUS":
		res := responses.Status{Mailbox: new(imap.MailboxStatus)}
		if err := res.Handle(resp); err != nil {
			return err
		}
		r.statuses = append(r.statuses, res.Mailbox)
		return nil
	}
	return responses.ErrUnhandled
}
