package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"git.sr.ht/~sircmpwn/getopt"
	"github.com/mattn/go-isatty"

	"git.sr.ht/~rjarry/mlsync/app"
	"git.sr.ht/~rjarry/mlsync/config"
	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/lib/sort"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker"
)

// set at build time
var Version string

func buildInfo() string {
	info := Version
	if info == "" {
		info = "dev"
	}
	return fmt.Sprintf("%s (%s %s %s)",
		info, runtime.Version(), runtime.GOARCH, runtime.GOOS)
}

func usage(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	fmt.Fprintln(os.Stderr, "usage: mlsync [-v] [-C <config>] [-a <account>] "+
		"[-s <sort>] [-m <mailbox> | -t <type> | -A] [-q <query>] [-w] [-n <count>] "+
		"[-D <count>]")
	os.Exit(1)
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

type options struct {
	config  string
	account string
	sort    string
	mailbox string
	typ     string
	all     bool
	query   string
	follow  bool
	max     int
	demo    int
}

func parseOptions(args []string) (*options, error) {
	opts, optind, err := getopt.Getopts(args, "vC:a:s:m:t:Aq:wn:D:")
	if err != nil {
		return nil, err
	}
	if optind < len(args) {
		return nil, fmt.Errorf("unexpected argument %q", args[optind])
	}
	o := &options{}
	for _, opt := range opts {
		switch opt.Option {
		case 'v':
			fmt.Println("mlsync " + buildInfo())
			os.Exit(0)
		case 'C':
			o.config = opt.Value
		case 'a':
			o.account = opt.Value
		case 's':
			o.sort = opt.Value
		case 'm':
			o.mailbox = opt.Value
		case 't':
			o.typ = opt.Value
		case 'A':
			o.all = true
		case 'q':
			o.query = opt.Value
		case 'w':
			o.follow = true
		case 'n', 'D':
			n, err := strconv.Atoi(opt.Value)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("-%c: invalid count %q", opt.Option, opt.Value)
			}
			if opt.Option == 'n' {
				o.max = n
			} else {
				o.demo = n
			}
		}
	}
	return o, nil
}

// loadConfig reads the configuration file, or builds a single in-memory
// account holding generated mails in demo mode
func loadConfig(o *options) (*config.Config, error) {
	if o.demo == 0 {
		var accts []string
		if o.account != "" {
			accts = []string{o.account}
		}
		return config.LoadConfigFromFile(o.config, accts)
	}
	conf, err := config.Load([]byte(fmt.Sprintf(
		"[demo]\nsource = mem://demo?demo=%d\n", o.demo)), nil)
	if err != nil {
		return nil, err
	}
	o.account = "demo"
	return conf, nil
}

func buildFilter(o *options, acct *config.AccountConfig) (*models.Filter, error) {
	filter := &models.Filter{
		Mode:      models.FilterMailbox,
		AccountID: acct.Name,
		MailboxID: acct.Default,
	}
	if o.mailbox != "" {
		filter.MailboxID = o.mailbox
	}
	if o.typ != "" {
		typ, err := models.ParseMailboxType(o.typ)
		if err != nil {
			return nil, err
		}
		filter.Mode = models.FilterAll
		filter.MailboxType = typ
	}
	if o.all {
		filter.Mode = models.FilterAccount
	}
	if o.query != "" {
		if err := applyQuery(filter, o.query); err != nil {
			return nil, fmt.Errorf("-q: %w", err)
		}
	}
	return filter, nil
}

func main() {
	defer log.PanicHandler()
	o, err := parseOptions(os.Args)
	if err != nil {
		usage("error: " + err.Error())
		return
	}

	conf, err := loadConfig(o)
	if err != nil {
		die("Failed to load config: %v", err)
	}
	if err := conf.General.InitLogging(); err != nil {
		die("%v", err)
	}
	log.Infof("Starting up version %s", buildInfo())

	acct, err := conf.Account(o.account)
	if err != nil {
		die("%v", err)
	}
	filter, err := buildFilter(o, acct)
	if err != nil {
		die("%v", err)
	}
	mode := conf.View.Sort
	if o.sort != "" {
		if mode, err = sort.ParseString(o.sort); err != nil {
			die("-s: %v", err)
		}
	}

	engine, err := worker.NewEngine(acct)
	if err != nil {
		die("account %s: %v", acct.Name, err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warnf("failed to close engine: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := &printer{
		out:    os.Stdout,
		errOut: os.Stderr,
		max:    o.max,
		follow: o.follow,
		done:   cancel,
	}
	view := app.NewMailboxView(engine, acct, conf.View, p)
	p.lookup = view.Store().Lookup
	p.rows = view.Store().Summaries

	if isatty.IsTerminal(os.Stderr.Fd()) {
		what := filter.MailboxID
		switch filter.Mode {
		case models.FilterAll:
			what = "all " + strings.ToLower(filter.MailboxType.String()) + " mailboxes"
		case models.FilterAccount:
			what = "all mailboxes"
		}
		statusColor.Fprintf(os.Stderr, "%s: %s by %s\n", acct.Name, what, mode)
	}
	view.Load(filter, mode)
	view.Run(ctx)
	if p.err != nil {
		os.Exit(1) //nolint:gocritic // the engine is abandoned
	}
}
