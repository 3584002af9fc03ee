// Package common provides the InitWith/InitWithMust bootstrap every
// executable in this repo calls first: it parses flags, pins GOMAXPROCS,
// logs the resolved flag set, and wires up whichever optional subsystems
// (currently: Prometheus) the caller asks for. Adapted from
// go.skia.org/infra/go/common (go/common/with.go in the retrieved pack);
// the Google Cloud Logging Opt has been dropped since this service has no
// GCP dependency (see DESIGN.md) and the FlagSet option has been added
// since this repo's ServerFlags (dispatch/config) builds its own
// *flag.FlagSet rather than using the package-level flag.CommandLine.
package common

import (
	"flag"
	"fmt"
	"runtime"
	"sort"

	"go.fieldcore.build/go/metrics2"
	"go.fieldcore.build/go/sklog"
)

// Opt represents one optional initialization step (Prometheus, etc).
// Construct the Opts desired and pass them to InitWith/InitWithMust.
type Opt interface {
	order() int
	preinit(appName string) error
	init(appName string) error
}

type optSlice []Opt

func (p optSlice) Len() int           { return len(p) }
func (p optSlice) Less(i, j int) bool { return p[i].order() < p[j].order() }
func (p optSlice) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }

// baseInitOpt always runs first, regardless of what else is passed in.
type baseInitOpt struct {
	fs *flag.FlagSet
}

func (b *baseInitOpt) preinit(appName string) error {
	if b.fs != nil {
		return nil // caller parses its own FlagSet before calling InitWith.
	}
	flag.Parse()
	return nil
}

func (b *baseInitOpt) init(appName string) error {
	visit := flag.VisitAll
	if b.fs != nil {
		visit = b.fs.VisitAll
	}
	visit(func(f *flag.Flag) {
		sklog.Infof("Flags: --%s=%v", f.Name, f.Value)
	})
	runtime.GOMAXPROCS(runtime.NumCPU())
	return nil
}

func (b *baseInitOpt) order() int { return 0 }

// FlagSetOpt tells InitWith that flags were already parsed via fs, so it
// should log fs's flags instead of the package-level flag.CommandLine.
func FlagSetOpt(fs *flag.FlagSet) Opt {
	return &baseInitOpt{fs: fs}
}

// promInitOpt implements Opt for Prometheus metrics export.
type promInitOpt struct {
	port *string
}

// PrometheusOpt creates an Opt that starts serving Prometheus metrics on
// *port when passed to InitWith().
func PrometheusOpt(port *string) Opt {
	return &promInitOpt{port: port}
}

func (o *promInitOpt) preinit(appName string) error {
	metrics2.InitPrometheus(*o.port)
	return nil
}

func (o *promInitOpt) init(appName string) error {
	metrics2.NewLiveness("uptime", nil)
	return nil
}

func (o *promInitOpt) order() int { return 3 }

// InitWith initializes each service-level subsystem named by opts, in a
// fixed preinit-then-init order. Returns an error rather than panicking so
// callers that want graceful shutdown can choose not to use InitWithMust.
func InitWith(appName string, opts ...Opt) error {
	hasBase := false
	for _, o := range opts {
		if _, ok := o.(*baseInitOpt); ok {
			hasBase = true
		}
	}
	if !hasBase {
		opts = append(opts, &baseInitOpt{})
	}
	sort.Sort(optSlice(opts))

	for i := 0; i < len(opts)-1; i++ {
		if opts[i].order() == opts[i+1].order() {
			return fmt.Errorf("only one of each type of Opt can be used")
		}
	}
	for _, o := range opts {
		if err := o.preinit(appName); err != nil {
			return err
		}
	}
	for _, o := range opts {
		if err := o.init(appName); err != nil {
			return err
		}
	}
	return nil
}

// InitWithMust calls InitWith and fails fatally (via sklog.Fatalf) on error.
func InitWithMust(appName string, opts ...Opt) {
	if err := InitWith(appName, opts...); err != nil {
		sklog.Fatalf("Failed to initialize: %s", err)
	}
}

// MultiStringFlag implements flag.Value, collecting repeated occurrences of
// a flag into a slice. Mirrors the teacher's common.NewMultiStringFlag.
type MultiStringFlag struct {
	values *[]string
}

func (m *MultiStringFlag) String() string {
	if m.values == nil {
		return ""
	}
	return fmt.Sprint(*m.values)
}

func (m *MultiStringFlag) Set(v string) error {
	*m.values = append(*m.values, v)
	return nil
}

// NewMultiStringFlag registers a repeatable string flag on fs and returns a
// pointer to the slice it will populate.
func NewMultiStringFlag(fs *flag.FlagSet, name string, deflt []string, usage string) *[]string {
	values := append([]string{}, deflt...)
	fs.Var(&MultiStringFlag{values: &values}, name, usage)
	return &values
}
