package config

import (
	"fmt"
	"time"

	"github.com/go-ini/ini"

	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/lib/sort"
)

type ViewConfig struct {
	Sort sort.Mode `ini:"sort" default:"date-recent" parse:"ParseSort"`
	// FirstBlockSize rows are inserted before the load call returns
	FirstBlockSize int `ini:"first-block-size" default:"9"`
	BatchSize      int `ini:"batch-size" default:"50"`
	// PageSize limits each engine query, 0 fetches everything at once
	PageSize       int           `ini:"page-size" default:"0"`
	ConnectTimeout time.Duration `ini:"connect-timeout" default:"100ms"`
	BusyDefer      time.Duration `ini:"busy-defer" default:"200ms"`

	TimestampFormat    string `ini:"timestamp-format" default:"2006-01-02 03:04 PM"`
	ThisDayTimeFormat  string `ini:"this-day-time-format" default:"15:04"`
	ThisWeekTimeFormat string `ini:"this-week-time-format"`
	ThisYearTimeFormat string `ini:"this-year-time-format"`
}

// DefaultView returns the [view] settings used when the file has none
func DefaultView() ViewConfig {
	var v ViewConfig
	if err := v.parse(ini.Empty()); err != nil {
		panic(err)
	}
	return v
}

func (v *ViewConfig) parse(file *ini.File) error {
	if err := mapSection(file.Section("view"), v); err != nil {
		return err
	}
	if v.FirstBlockSize < 1 {
		return fmt.Errorf("[view].first-block-size must be positive")
	}
	if v.BatchSize < 1 {
		return fmt.Errorf("[view].batch-size must be positive")
	}
	if v.PageSize < 0 {
		return fmt.Errorf("[view].page-size cannot be negative")
	}
	log.Tracef("mlsync.conf: [view] %#v", v)
	return nil
}

func (v *ViewConfig) ParseSort(sec *ini.Section, key *ini.Key) (sort.Mode, error) {
	return sort.ParseString(key.String())
}
