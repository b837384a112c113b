package app

import (
	"fmt"

	"git.sr.ht/~rjarry/mlsync/models"
)

type saveAction int

const (
	saveIgnore saveAction = iota
	saveUpdate
	saveRemove
)

func (a saveAction) String() string {
	switch a {
	case saveIgnore:
		return "ignore"
	case saveUpdate:
		return "update"
	case saveRemove:
		return "remove"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

const (
	anyMailbox models.MailboxType = -1
	anyStatus  models.SaveStatus  = -1
)

type saveStatusRule struct {
	mailbox models.MailboxType
	from    models.SaveStatus
	to      models.SaveStatus
	action  saveAction
}

// saveStatusRules decides what a save status change does to a listed mail.
// The first matching row wins.
var saveStatusRules = []saveStatusRule{
	// mails leave the outbox once handed to the scheduler or sent
	{models.Outbox, anyStatus, models.SendScheduled, saveRemove},
	{models.Outbox, anyStatus, models.SendDone, saveRemove},
	{models.Outbox, anyStatus, anyStatus, saveUpdate},
	// scheduled mails disappear when they start sending
	{models.Scheduled, models.SendScheduled, models.Sending, saveRemove},
	{models.Scheduled, anyStatus, models.SendDone, saveRemove},
	{models.Scheduled, anyStatus, models.SendCanceled, saveRemove},
	{models.Scheduled, anyStatus, anyStatus, saveUpdate},
	// a draft being sent is no longer a draft
	{models.Drafts, anyStatus, models.Sending, saveRemove},
	{models.Drafts, anyStatus, models.SendDone, saveRemove},
	{anyMailbox, anyStatus, anyStatus, saveUpdate},
}

func (r *saveStatusRule) matches(mailbox models.MailboxType, from, to models.SaveStatus) bool {
	return (r.mailbox == anyMailbox || r.mailbox == mailbox) &&
		(r.from == anyStatus || r.from == from) &&
		(r.to == anyStatus || r.to == to)
}

func saveStatusAction(mailbox models.MailboxType, from, to models.SaveStatus) saveAction {
	if from == to {
		return saveIgnore
	}
	for i := range saveStatusRules {
		if saveStatusRules[i].matches(mailbox, from, to) {
			return saveStatusRules[i].action
		}
	}
	return saveIgnore
}
