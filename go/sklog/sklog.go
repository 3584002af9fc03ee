// Package sklog offers severity-leveled logging with caller location, in the
// same shape regardless of which backend is active. By default log lines go
// to stderr; call SetOutput to redirect them (e.g. to a structured sink in
// tests).
package sklog

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	DEBUG    = "DEBUG"
	INFO     = "INFO"
	NOTICE   = "NOTICE"
	WARNING  = "WARNING"
	ERROR    = "ERROR"
	CRITICAL = "CRITICAL"
	ALERT    = "ALERT"
)

// MetricsCallback is invoked once per log line with its severity, so callers
// can wire up "count of ERROR lines" style alerting without sklog depending
// on a metrics package.
type MetricsCallback func(severity string)

var (
	mu sync.Mutex
	out io.Writer = os.Stderr

	// sawLogWithSeverity reports every log line's severity to whoever called
	// SetMetricsCallback. Defaults to a no-op so packages that never call
	// SetMetricsCallback pay nothing.
	sawLogWithSeverity MetricsCallback = func(s string) {}

	// AllSeverities is the list of all severities sklog supports.
	AllSeverities = []string{DEBUG, INFO, NOTICE, WARNING, ERROR, CRITICAL, ALERT}
)

// SetOutput redirects all log lines. Intended for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetMetricsCallback installs cb to be called with the severity of every
// log line emitted from this point on.
func SetMetricsCallback(cb MetricsCallback) {
	mu.Lock()
	defer mu.Unlock()
	sawLogWithSeverity = cb
}

func Debug(msg ...interface{}) { sawLogWithSeverity(DEBUG); log(0, DEBUG, fmt.Sprint(msg...)) }

func Debugf(format string, v ...interface{}) {
	sawLogWithSeverity(DEBUG)
	log(0, DEBUG, fmt.Sprintf(format, v...))
}

func Debugln(msg ...interface{}) { sawLogWithSeverity(DEBUG); log(0, DEBUG, fmt.Sprintln(msg...)) }

func Info(msg ...interface{}) { sawLogWithSeverity(INFO); log(0, INFO, fmt.Sprint(msg...)) }

func Infof(format string, v ...interface{}) {
	sawLogWithSeverity(INFO)
	log(0, INFO, fmt.Sprintf(format, v...))
}

func Infoln(msg ...interface{}) { sawLogWithSeverity(INFO); log(0, INFO, fmt.Sprintln(msg...)) }

func Warning(msg ...interface{}) { sawLogWithSeverity(WARNING); log(0, WARNING, fmt.Sprint(msg...)) }

func Warningf(format string, v ...interface{}) {
	sawLogWithSeverity(WARNING)
	log(0, WARNING, fmt.Sprintf(format, v...))
}

func Warningln(msg ...interface{}) {
	sawLogWithSeverity(WARNING)
	log(0, WARNING, fmt.Sprintln(msg...))
}

func Error(msg ...interface{}) { sawLogWithSeverity(ERROR); log(0, ERROR, fmt.Sprint(msg...)) }

func Errorf(format string, v ...interface{}) {
	sawLogWithSeverity(ERROR)
	log(0, ERROR, fmt.Sprintf(format, v...))
}

func Errorln(msg ...interface{}) { sawLogWithSeverity(ERROR); log(0, ERROR, fmt.Sprintln(msg...)) }

// Fatal logs at ALERT and then panics. There is no callback to
// sawLogWithSeverity here: the process is about to exit.
func Fatal(msg ...interface{}) {
	log(0, ALERT, fmt.Sprint(msg...))
	panic(fmt.Sprint(msg...))
}

func Fatalf(format string, v ...interface{}) {
	log(0, ALERT, fmt.Sprintf(format, v...))
	panic(fmt.Sprintf(format, v...))
}

func Fatalln(msg ...interface{}) {
	log(0, ALERT, fmt.Sprintln(msg...))
	panic(fmt.Sprintln(msg...))
}

// log writes one line in "severity file:line: payload" form. depthOffset
// lets a wrapper (none currently ships in this package) attribute the log
// line to its own caller instead of itself.
func log(depthOffset int, severity, payload string) {
	stackDepth := 3 + depthOffset
	loc := CallStack(1, stackDepth)[0]
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, "%s %s %s: %s\n", time.Now().UTC().Format(time.RFC3339), severity, loc.String(), strings.TrimRight(payload, "\n"))
}

type StackTrace struct {
	File string
	Line int
}

func (st StackTrace) String() string {
	return fmt.Sprintf("%s:%d", st.File, st.Line)
}

// CallStack returns up to height StackTrace entries starting startAt frames
// above the call to CallStack itself (1 = CallStack's caller). Frames beyond
// the top of the stack are padded with a dummy "???":1 entry.
func CallStack(height, startAt int) []StackTrace {
	stack := make([]StackTrace, 0, height)
	for i := 0; i < height; i++ {
		_, file, line, ok := runtime.Caller(startAt + i)
		if !ok {
			file, line = "???", 1
		} else if slash := strings.LastIndex(file, "/"); slash >= 0 {
			file = file[slash+1:]
		}
		stack = append(stack, StackTrace{File: file, Line: line})
	}
	return stack
}
