package pkg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is a map of fields to add to log entries
type Fields map[string]any

var (
	instance *Logger
	mu       sync.RWMutex

	// sync.Once for setting zerolog global state (to prevent data races)
	timeFormatOnce sync.Once
	stackOnce      sync.Once
	callerSkipOnce sync.Once
)

// Logger wraps zerolog with simulation-aware helpers
type Logger struct {
	*zerolog.Logger
	config *Config
	closer io.Closer
	mu     sync.RWMutex
}

// Config holds logger configuration
type Config struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fatal, panic)
	Level string `json:"level" yaml:"level" toml:"level"`

	// Format is the output format (json, console)
	Format string `json:"format" yaml:"format" toml:"format"`

	// TimestampFormat for logs
	TimestampFormat string `json:"timestamp_format" yaml:"timestamp_format" toml:"timestamp_format"`

	// Console output settings
	Console ConsoleConfig `json:"console" yaml:"console" toml:"console"`

	// File output settings
	File FileConfig `json:"file" yaml:"file" toml:"file"`

	// Sampling reduces log volume on long runs
	Sampling SamplingConfig `json:"sampling" yaml:"sampling" toml:"sampling"`

	// Fields are default fields added to all logs
	Fields Fields `json:"fields" yaml:"fields" toml:"fields"`

	// CallerSkipFrameCount for caller information
	CallerSkipFrameCount int `json:"caller_skip_frame_count" yaml:"caller_skip_frame_count" toml:"caller_skip_frame_count"`

	// EnableCaller adds caller information to logs
	EnableCaller bool `json:"enable_caller" yaml:"enable_caller" toml:"enable_caller"`

	// EnableStackTrace for error logs
	EnableStackTrace bool `json:"enable_stack_trace" yaml:"enable_stack_trace" toml:"enable_stack_trace"`

	// AsyncWrite uses a diode writer so logging never blocks the event loop
	AsyncWrite bool `json:"async_write" yaml:"async_write" toml:"async_write"`

	// BufferSize for async writer (in messages)
	BufferSize int `json:"buffer_size" yaml:"buffer_size" toml:"buffer_size"`

	// Writer replaces console and file outputs when set
	Writer io.Writer `json:"-" yaml:"-" toml:"-"`
}

// ConsoleConfig for console output
type ConsoleConfig struct {
	Enable     bool   `json:"enable" yaml:"enable" toml:"enable"`
	NoColor    bool   `json:"no_color" yaml:"no_color" toml:"no_color"`
	TimeFormat string `json:"time_format" yaml:"time_format" toml:"time_format"`

	// Output target (stdout, stderr)
	Output string `json:"output" yaml:"output" toml:"output"`
}

// FileConfig for rotated file output
type FileConfig struct {
	Enable bool   `json:"enable" yaml:"enable" toml:"enable"`
	Path   string `json:"path" yaml:"path" toml:"path"`

	// MaxSize in megabytes
	MaxSize int `json:"max_size" yaml:"max_size" toml:"max_size"`

	// MaxAge in days
	MaxAge     int  `json:"max_age" yaml:"max_age" toml:"max_age"`
	MaxBackups int  `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
	LocalTime  bool `json:"local_time" yaml:"local_time" toml:"local_time"`
	Compress   bool `json:"compress" yaml:"compress" toml:"compress"`
}

// SamplingConfig for log sampling
type SamplingConfig struct {
	Enable bool `json:"enable" yaml:"enable" toml:"enable"`

	// Every Nth message is kept
	Every uint32 `json:"every" yaml:"every" toml:"every"`
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:           "info",
		Format:          "console",
		TimestampFormat: time.RFC3339Nano,
		Console: ConsoleConfig{
			Enable:     true,
			TimeFormat: "15:04:05.000",
			Output:     "stderr",
		},
		File: FileConfig{
			Path:       "chordsim.log",
			MaxSize:    100, // 100MB
			MaxAge:     30,  // 30 days
			MaxBackups: 10,
			LocalTime:  true,
			Compress:   true,
		},
		Sampling: SamplingConfig{
			Every: 10,
		},
		Fields:               make(Fields),
		CallerSkipFrameCount: 2,
		EnableStackTrace:     true,
		BufferSize:           10000,
	}
}

// Init initializes the global logger with configuration
func Init(config *Config) error {
	logger, err := New(config)
	if err != nil {
		return err
	}

	SetGlobal(logger)
	return nil
}

// New creates a new logger instance
func New(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", config.Level, err)
	}

	writers := []io.Writer{}
	var closer io.Closer

	if config.Writer != nil {
		writers = append(writers, config.Writer)
	} else {
		if config.Console.Enable {
			var output io.Writer = os.Stdout
			if config.Console.Output == "stderr" {
				output = os.Stderr
			}

			if config.Format == "console" {
				writers = append(writers, zerolog.ConsoleWriter{
					Out:        output,
					TimeFormat: config.Console.TimeFormat,
					NoColor:    config.Console.NoColor,
				})
			} else {
				writers = append(writers, output)
			}
		}

		if config.File.Enable {
			if config.File.Path == "" {
				return nil, fmt.Errorf("file output enabled without a path")
			}
			if err := os.MkdirAll(filepath.Dir(config.File.Path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}

			fileWriter := &lumberjack.Logger{
				Filename:   config.File.Path,
				MaxSize:    config.File.MaxSize,
				MaxAge:     config.File.MaxAge,
				MaxBackups: config.File.MaxBackups,
				LocalTime:  config.File.LocalTime,
				Compress:   config.File.Compress,
			}
			writers = append(writers, fileWriter)
			closer = fileWriter
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	if config.AsyncWrite {
		dw := diode.NewWriter(writer, config.BufferSize, 10*time.Millisecond, func(missed int) {
			fmt.Fprintf(os.Stderr, "Logger dropped %d messages\n", missed)
		})
		writer = dw
		closer = dw
	}

	if config.EnableCaller {
		callerSkipOnce.Do(func() {
			zerolog.CallerSkipFrameCount = config.CallerSkipFrameCount
		})
	}

	ctx := zerolog.New(writer).
		Level(level).
		With().
		Timestamp()

	if config.EnableCaller {
		ctx = ctx.Caller()
	}

	for k, v := range config.Fields {
		ctx = ctx.Interface(k, v)
	}

	if config.EnableStackTrace {
		stackOnce.Do(func() {
			zerolog.ErrorStackMarshaler = func(err error) any {
				return fmt.Sprintf("%+v", err)
			}
		})
	}

	zl := ctx.Logger()
	if config.Sampling.Enable && config.Sampling.Every > 1 {
		zl = zl.Sample(&zerolog.BasicSampler{N: config.Sampling.Every})
	}

	if config.TimestampFormat != "" {
		timeFormatOnce.Do(func() {
			zerolog.TimeFieldFormat = config.TimestampFormat
		})
	}

	return &Logger{
		Logger: &zl,
		config: config,
		closer: closer,
	}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	zl := zerolog.Nop()
	return &Logger{Logger: &zl, config: DefaultConfig()}
}

// SetGlobal sets the global logger instance
func SetGlobal(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	instance = l
}

// Get returns the global logger instance
func Get() *Logger {
	mu.RLock()
	l := instance
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		instance, _ = New(DefaultConfig())
	}
	return instance
}

func (l *Logger) derive(zl zerolog.Logger) *Logger {
	return &Logger{Logger: &zl, config: l.config}
}

func (l *Logger) base() *zerolog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.Logger
}

// clockHook stamps each entry with the simulated clock reading.
type clockHook struct {
	now func() uint64
}

func (h clockHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Uint64("sim_time", h.now())
}

// WithClock returns a child logger that adds a sim_time field read from now
// to every entry.
func (l *Logger) WithClock(now func() uint64) *Logger {
	if now == nil {
		return l
	}
	return l.derive(l.base().Hook(clockHook{now: now}))
}

// ForNode returns a child logger tagged with a node id.
func (l *Logger) ForNode(id uint64) *Logger {
	return l.derive(l.base().With().Uint64("node_id", id).Logger())
}

// Component returns a child logger tagged with a component name.
func (l *Logger) Component(name string) *Logger {
	return l.derive(l.base().With().Str("component", name).Logger())
}

// WithFields creates a new logger with additional fields
func (l *Logger) WithFields(fields Fields) *Logger {
	ctx := l.base().With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return l.derive(ctx.Logger())
}

// WithError creates a new logger with error details added
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.derive(l.base().With().
		Str("error", err.Error()).
		Str("error_type", fmt.Sprintf("%T", err)).
		Logger())
}

// UpdateLevel updates the log level dynamically
func (l *Logger) UpdateLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	newLogger := l.Logger.Level(lvl)
	l.Logger = &newLogger
	l.config.Level = level
	return nil
}

// Close flushes async buffers and closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}

// Global logger convenience functions

// Debug logs at debug level
func Debug() *zerolog.Event {
	return Get().Debug()
}

// Info logs at info level
func Info() *zerolog.Event {
	return Get().Info()
}

// Warn logs at warn level
func Warn() *zerolog.Event {
	return Get().Warn()
}

// Error logs at error level
func Error() *zerolog.Event {
	return Get().Error()
}

// Fatal logs at fatal level and exits
func Fatal() *zerolog.Event {
	return Get().Fatal()
}
