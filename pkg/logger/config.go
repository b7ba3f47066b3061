package logger

// Config 日志配置
type Config struct {
	Level      string // debug/info/warn/error/fatal
	FilePath   string // 日志文件路径
	MaxSize    int    // 单文件最大 MB
	MaxBackups int    // 保留文件数
	MaxAge     int    // 保留天数
	Compress   bool   // 是否压缩历史文件
	Console    bool   // 是否同时输出到控制台
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		FilePath:   "logs/tracker.log",
		MaxSize:    10,
		MaxBackups: 60,
		MaxAge:     7,
	}
}

// Builder 日志构建器
type Builder struct {
	config Config
}

func NewBuilder() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) SetLevel(level string) *Builder {
	b.config.Level = level
	return b
}

func (b *Builder) SetFilePath(path string) *Builder {
	b.config.FilePath = path
	return b
}

func (b *Builder) SetMaxSize(size int) *Builder {
	b.config.MaxSize = size
	return b
}

func (b *Builder) SetMaxBackups(backups int) *Builder {
	b.config.MaxBackups = backups
	return b
}

func (b *Builder) SetMaxAge(days int) *Builder {
	b.config.MaxAge = days
	return b
}

func (b *Builder) EnableCompression(enable bool) *Builder {
	b.config.Compress = enable
	return b
}

func (b *Builder) EnableConsoleOutput(enable bool) *Builder {
	b.config.Console = enable
	return b
}

func (b *Builder) Build() error {
	return initLogger(b.config)
}
