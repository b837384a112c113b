package main

import (
	"fmt"
	"strings"

	"git.sr.ht/~sircmpwn/getopt"
	"github.com/google/shlex"

	"git.sr.ht/~rjarry/mlsync/models"
)

// applyQuery reads a filter in the getopt style: -r and -u select read or unread
// mails, -x and -X require or exclude a flag and the remaining words are the
// search keyword.
func applyQuery(filter *models.Filter, query string) error {
	args, err := shlex.Split(query)
	if err != nil {
		return err
	}
	// getopt skips the program name
	args = append([]string{"query"}, args...)
	opts, optind, err := getopt.Getopts(args, "rux:X:")
	if err != nil {
		return err
	}
	for _, opt := range opts {
		switch opt.Option {
		case 'r':
			filter.RequireFlags |= models.SeenFlag
		case 'u':
			filter.ExcludeFlags |= models.SeenFlag
		case 'x', 'X':
			flag, err := models.ParseFlag(opt.Value)
			if err != nil {
				return err
			}
			if opt.Option == 'x' {
				filter.RequireFlags |= flag
			} else {
				filter.ExcludeFlags |= flag
			}
		}
	}
	if filter.RequireFlags&filter.ExcludeFlags != 0 {
		return fmt.Errorf("%s both required and excluded",
			filter.RequireFlags&filter.ExcludeFlags)
	}
	filter.Search = strings.Join(args[optind:], " ")
	return nil
}
