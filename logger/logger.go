package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

type Config struct {
	logFilePath string
}

// Init 初始化日志，默认输出到 stdout
func Init() *Config {
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		TimestampFormat: time.RFC3339,
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)
	return &Config{}
}

// ToStdoutAndFile 同时输出到 stdout 和日志文件
func (c *Config) ToStdoutAndFile() *Config {
	if c.logFilePath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Errorf("get user home dir failed, log to stdout only: %s", err)
			return c
		}
		c.logFilePath = filepath.Join(homeDir, ".warden", "logs", "engine.log")
	}
	if err := os.MkdirAll(filepath.Dir(c.logFilePath), 0755); err != nil {
		log.Errorf("create log dir failed, log to stdout only: %s", err)
		return c
	}
	f, err := os.OpenFile(c.logFilePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		log.Errorf("open log file failed, log to stdout only: %s", err)
		return c
	}
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	return c
}

// ToFile 指定日志文件路径
func (c *Config) ToFile(path string) *Config {
	c.logFilePath = path
	return c.ToStdoutAndFile()
}

func (c *Config) SetLevel(level logrus.Level) *Config {
	log.SetLevel(level)
	return c
}

func Trace(args ...interface{}) {
	log.Trace(args...)
}

func Tracef(format string, args ...interface{}) {
	log.Tracef(format, args...)
}

func Debug(args ...interface{}) {
	log.Debug(args...)
}

func Debugf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

func Info(args ...interface{}) {
	log.Info(args...)
}

func Infof(format string, args ...interface{}) {
	log.Infof(format, args...)
}

func Warn(args ...interface{}) {
	log.Warn(args...)
}

func Warnf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

func Error(args ...interface{}) {
	log.Error(args...)
}

func Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}
