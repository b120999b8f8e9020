// Package config implements the configuration file describing the compiler
// sweep, the external tools and the analysis limits.
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/user"
	"path"
	"runtime"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".dwatch"
	configFile string = "config.yml"
)

// Config defines all configuration options available to be set through the
// config file.
type Config struct {
	// CompilerPath is the C compiler driving the variant matrix.
	CompilerPath string `yaml:"compiler-path"`
	// OptLevels is the ordered set of optimization levels to sweep.
	OptLevels []string `yaml:"opt-levels"`
	// DebugLevels is the ordered set of debug-info levels to sweep.
	DebugLevels []string `yaml:"debug-levels"`
	// IncludeDir is passed to every compiler invocation as -I<dir>.
	IncludeDir string `yaml:"include-dir"`
	// CFlags holds extra compiler flags, quoted the way a shell would
	// accept them.
	CFlags string `yaml:"cflags"`

	// EvidenceDir is where flagged sources and binaries are copied.
	EvidenceDir string `yaml:"evidence-dir"`

	// DwarfDumpPath is the llvm-dwarfdump executable.
	DwarfDumpPath string `yaml:"dwarfdump-path"`
	// DebuggerPath is the MI-speaking debugger executable.
	DebuggerPath string `yaml:"debugger-path"`
	// ExtractorPath is the external debug-value extraction command. Empty
	// disables issue detection.
	ExtractorPath string `yaml:"extractor-path"`

	// CompileTimeoutSec bounds one compiler invocation.
	CompileTimeoutSec int `yaml:"compile-timeout"`
	// ExecuteTimeoutSec bounds one run of a compiled program.
	ExecuteTimeoutSec int `yaml:"execute-timeout"`
	// AnalysisTimeoutSec bounds the whole analysis of one source file.
	AnalysisTimeoutSec int `yaml:"analysis-timeout"`

	// MaxWorkers is the size of the per-source-file worker pool. Zero
	// means the number of CPUs.
	MaxWorkers int `yaml:"max-workers"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		CompilerPath:       "clang",
		OptLevels:          []string{"0", "1", "2", "3", "s", "z"},
		DebugLevels:        []string{"1", "2", "3"},
		IncludeDir:         "/usr/local/include",
		EvidenceDir:        "./evidence",
		DwarfDumpPath:      "llvm-dwarfdump",
		DebuggerPath:       "gdb",
		CompileTimeoutSec:  60,
		ExecuteTimeoutSec:  30,
		AnalysisTimeoutSec: 300,
		MaxWorkers:         runtime.NumCPU(),
	}
}

// LoadConfig attempts to populate a Config object from the config.yml file,
// creating it with defaults if it does not exist yet.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.\n", err)
		return Default()
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.\n", err)
		return Default()
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			fmt.Printf("Error creating default config file: %v\n", err)
			return Default()
		}
	}
	defer func() {
		err := f.Close()
		if err != nil {
			fmt.Printf("Closing config file failed: %v.\n", err)
		}
	}()

	data, err := ioutil.ReadAll(f)
	if err != nil {
		fmt.Printf("Unable to read config data: %v.\n", err)
		return Default()
	}

	return decode(data)
}

// LoadConfigFile populates a Config object from an explicit path.
func LoadConfigFile(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decode(data), nil
}

func decode(data []byte) *Config {
	c := Default()
	err := yaml.Unmarshal(data, c)
	if err != nil {
		fmt.Printf("Unable to decode config file: %v.\n", err)
		return Default()
	}
	return c
}

// SaveConfig will marshal and save the config struct to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}
	return WriteConfigFile(conf, fullConfigFile)
}

// WriteConfigFile marshals and saves the config struct to the given path.
func WriteConfigFile(conf *Config, path string) error {
	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	err := WriteConfigFile(Default(), path)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	return os.Open(path)
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	if configPath := os.Getenv("DWATCH_HOME"); configPath != "" {
		return path.Join(configPath, file), nil
	}
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
