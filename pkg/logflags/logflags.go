// Package logflags turns logging for the various pipeline components on and
// off based on command line flags.
package logflags

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var build = false
var dump = false
var verifier = false
var detector = false
var miWire = false
var checker = false
var generator = false
var analyze = false

var logOut io.Writer

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	lg := logrus.New()
	lg.Formatter = textFormatter()
	if logOut != nil {
		lg.Out = logOut
	} else {
		lg.Out = os.Stderr
	}
	lg.Level = logrus.DebugLevel
	if !flag {
		lg.Level = logrus.ErrorLevel
	}
	return lg.WithFields(fields)
}

// textFormatter returns a formatter with colors enabled only when stderr is
// attached to a terminal.
func textFormatter() logrus.Formatter {
	colors := logOut == nil && isatty.IsTerminal(os.Stderr.Fd())
	return &logrus.TextFormatter{
		ForceColors:     colors,
		DisableColors:   !colors,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05",
	}
}

// Build returns true if the variant matrix builder should log.
func Build() bool {
	return build
}

// BuildLogger returns a logger for the variant matrix builder.
func BuildLogger() *logrus.Entry {
	return makeLogger(build, logrus.Fields{"layer": "build"})
}

// DwarfDump returns true if the dwarfdump parser should log.
func DwarfDump() bool {
	return dump
}

// DwarfDumpLogger returns a logger for the dwarfdump parser.
func DwarfDumpLogger() *logrus.Entry {
	return makeLogger(dump, logrus.Fields{"layer": "dwarfdump"})
}

// Verifier returns true if the breakpoint verifier should log.
func Verifier() bool {
	return verifier
}

// VerifierLogger returns a logger for the breakpoint verifier.
func VerifierLogger() *logrus.Entry {
	return makeLogger(verifier, logrus.Fields{"layer": "verify"})
}

// Detector returns true if the issue detector should log.
func Detector() bool {
	return detector
}

// DetectorLogger returns a logger for the issue detector.
func DetectorLogger() *logrus.Entry {
	return makeLogger(detector, logrus.Fields{"layer": "detect"})
}

// MIWire returns true if the debugger package should log all MI records
// exchanged with the debugger.
func MIWire() bool {
	return miWire
}

// MIWireLogger returns a configured logger for the MI wire protocol.
func MIWireLogger() *logrus.Entry {
	return makeLogger(miWire, logrus.Fields{"layer": "miconn"})
}

// Checker returns true if the interestingness checker should log.
func Checker() bool {
	return checker
}

// CheckerLogger returns a logger for the interestingness checker.
func CheckerLogger() *logrus.Entry {
	return makeLogger(checker, logrus.Fields{"layer": "checker"})
}

// Generator returns true if the case generator should log.
func Generator() bool {
	return generator
}

// GeneratorLogger returns a logger for the case generator.
func GeneratorLogger() *logrus.Entry {
	return makeLogger(generator, logrus.Fields{"layer": "generate"})
}

// Analyze returns true if the pipeline orchestrator should log.
func Analyze() bool {
	return analyze
}

// AnalyzeLogger returns a logger for the pipeline orchestrator.
func AnalyzeLogger() *logrus.Entry {
	return makeLogger(analyze, logrus.Fields{"layer": "analyze"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets component logging flags based on the contents of logstr and
// optionally redirects all log output to the file or file descriptor
// described by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = colorable.NewNonColorable(os.NewFile(uintptr(n), "debuginfo-logs"))
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log destination: %v", err)
			}
			logOut = colorable.NewNonColorable(fh)
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "analyze"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "build":
			build = true
		case "dwarfdump":
			dump = true
		case "verify":
			verifier = true
		case "detect":
			detector = true
		case "miwire":
			miWire = true
		case "checker":
			checker = true
		case "generate":
			generator = true
		case "analyze":
			analyze = true
		default:
			return fmt.Errorf("invalid log output argument '%s'", logcmd)
		}
	}
	return nil
}

// Close closes the logger output.
func Close() {
	if fh, ok := logOut.(io.Closer); ok {
		fh.Close()
	}
}
