// Package cmds implements the dwatch command line interface.
package cmds

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/edumoot/debugInfo/pkg/analyze"
	"github.com/edumoot/debugInfo/pkg/buildmatrix"
	"github.com/edumoot/debugInfo/pkg/checker"
	"github.com/edumoot/debugInfo/pkg/config"
	"github.com/edumoot/debugInfo/pkg/generate"
	"github.com/edumoot/debugInfo/pkg/logflags"
	"github.com/edumoot/debugInfo/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should
	// produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// configFile is an explicit config file path.
	configFile string
	// conf is the loaded configuration.
	conf *config.Config

	// flag overrides for the run command
	compilerPath string
	cflags       string
	evidenceDir  string
	workers      int

	// verify-worker arguments
	workerBinary    string
	workerWd        string
	workerDwarfDump string
	workerDebugger  string

	// generate arguments
	genCount int
	genDir   string
)

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:   "dwatch",
		Short: "Dwatch finds defects in the debug info emitted by optimizing C compilers.",
		Long: `Dwatch compiles a C program across every optimization and debug level,
deduplicates the resulting binaries, confirms the DWARF statement lines by
observing real breakpoint hits under a native debugger, and flags lines whose
debug values look wrong.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logflags.Setup(log, logOutput, logDest); err != nil {
				return err
			}
			if configFile != "" {
				var err error
				conf, err = config.LoadConfigFile(configFile)
				return err
			}
			conf = config.LoadConfig()
			return nil
		},
	}
	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debugging server logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (eg: --log-output=build,verify)
Available components:
	build		variant matrix builder
	dwarfdump	dump parser
	verify		breakpoint verifier
	detect		issue detector
	miwire		debugger wire protocol
	checker		interestingness checker
	generate	case generator
	analyze		pipeline orchestrator`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'dwatch help log').")
	rootCommand.PersistentFlags().StringVarP(&configFile, "config", "", "", "Use the specified config file instead of ~/.dwatch/config.yml.")

	runCommand := &cobra.Command{
		Use:   "run <dir-or-file>...",
		Short: "Analyze C source files for debug-info defects.",
		Long: `Analyzes every given .c file (directories are walked recursively). Each file
is compiled at every (optimization, debug) level pair, distinct binaries are
verified under the debugger and their debug values classified; flagged
sources and binaries land in the evidence directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCmd,
	}
	runCommand.Flags().StringVarP(&compilerPath, "cc", "", "", "Compiler to sweep (overrides the config file).")
	runCommand.Flags().StringVarP(&cflags, "cflags", "", "", "Extra compiler flags.")
	runCommand.Flags().StringVarP(&evidenceDir, "evidence", "", "", "Evidence directory (overrides the config file).")
	runCommand.Flags().IntVarP(&workers, "workers", "", 0, "Worker pool size (default: number of CPUs).")
	rootCommand.AddCommand(runCommand)

	checkCommand := &cobra.Command{
		Use:   "check <file.c>",
		Short: "Screen one case for undefined behavior and interestingness.",
		Args:  cobra.ExactArgs(1),
		RunE:  checkCmd,
	}
	rootCommand.AddCommand(checkCommand)

	generateCommand := &cobra.Command{
		Use:   "generate",
		Short: "Generate screened random C cases with csmith.",
		RunE:  generateCmd,
	}
	generateCommand.Flags().IntVarP(&genCount, "count", "n", 100, "Number of cases to generate.")
	generateCommand.Flags().StringVarP(&genDir, "output", "o", "generated_code", "Output directory.")
	rootCommand.AddCommand(generateCommand)

	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dwatch %s\n%s\n", version.DwatchVersion, version.BuildInfo())
		},
	}
	rootCommand.AddCommand(versionCommand)

	// Internal: verifies one binary in an isolated process. The debugger
	// session owns process-global state, so the orchestrator re-executes
	// this program once per binary instead of sharing a session.
	workerCommand := &cobra.Command{
		Use:    analyze.VerifyWorkerCommand,
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return analyze.VerifyWorkerMain(context.Background(), workerBinary, workerWd, workerDwarfDump, workerDebugger)
		},
	}
	workerCommand.Flags().StringVarP(&workerBinary, "binary", "", "", "Binary to verify.")
	workerCommand.Flags().StringVarP(&workerWd, "wd", "", ".", "Working directory for the debuggee.")
	workerCommand.Flags().StringVarP(&workerDwarfDump, "dwarfdump", "", "llvm-dwarfdump", "Dump tool.")
	workerCommand.Flags().StringVarP(&workerDebugger, "debugger", "", "gdb", "MI-speaking debugger.")
	rootCommand.AddCommand(workerCommand)

	return rootCommand
}

func analysisOptions() *analyze.Options {
	cc := conf.CompilerPath
	if compilerPath != "" {
		cc = compilerPath
	}
	flags := conf.CFlags
	if cflags != "" {
		flags = cflags
	}
	evidence := conf.EvidenceDir
	if evidenceDir != "" {
		evidence = evidenceDir
	}
	poolSize := conf.MaxWorkers
	if workers > 0 {
		poolSize = workers
	}
	return &analyze.Options{
		Build: &buildmatrix.Config{
			CC:          cc,
			OptLevels:   conf.OptLevels,
			DebugLevels: conf.DebugLevels,
			IncludeDir:  conf.IncludeDir,
			CFlags:      flags,
		},
		DwarfDumpPath:   conf.DwarfDumpPath,
		DebuggerPath:    conf.DebuggerPath,
		ExtractorPath:   conf.ExtractorPath,
		EvidenceDir:     evidence,
		CompileTimeout:  time.Duration(conf.CompileTimeoutSec) * time.Second,
		AnalysisTimeout: time.Duration(conf.AnalysisTimeoutSec) * time.Second,
		ExtractTimeout:  time.Duration(conf.ExecuteTimeoutSec) * time.Second,
		Workers:         poolSize,
	}
}

func runCmd(cmd *cobra.Command, args []string) error {
	var sources []string
	for _, arg := range args {
		fi, err := os.Stat(arg)
		if err != nil {
			return err
		}
		if fi.IsDir() {
			files, err := analyze.FindCFiles(arg)
			if err != nil {
				return err
			}
			sources = append(sources, files...)
		} else {
			sources = append(sources, arg)
		}
	}
	if len(sources) == 0 {
		return fmt.Errorf("no .c files found in %v", args)
	}
	analyze.ParallelSources(context.Background(), analysisOptions(), sources)
	return nil
}

func checkCmd(cmd *cobra.Command, args []string) error {
	c := checker.New()
	c.Clang = conf.CompilerPath
	ctx := context.Background()

	if c.Sanitize(ctx, args[0], conf.CFlags) {
		fmt.Println("The case is UB free!")
	} else {
		fmt.Println("The case has UBs.")
	}
	if c.InterestingWithPointers(ctx, args[0]) {
		fmt.Println("The case has pointers!")
	} else {
		fmt.Println("The case has no pointers.")
	}
	return nil
}

func generateCmd(cmd *cobra.Command, args []string) error {
	g := generate.New()
	g.Flags = conf.CFlags
	return g.Parallel(context.Background(), genDir, genCount, conf.MaxWorkers)
}
