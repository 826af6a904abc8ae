// Package logging adapts go-logger to the small leveled contract the blog
// components log through.
package logging

import (
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// Logger is the leveled logging contract used across the service. Child
// loggers returned by go-logger satisfy it directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Provider hands out named child loggers of one root logger.
type Provider struct {
	root *glog.BaseLogger
}

// New builds the root logger. format is one of json, console or pretty.
func New(level, format string) (*Provider, error) {
	options := []glog.Option{}

	if lvl := normalizeLevel(level); lvl != "" {
		options = append(options, glog.WithLevel(lvl))
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		options = append(options, glog.WithLoggerTypeConsole())
	case "json":
		options = append(options, glog.WithLoggerTypeJSON())
	case "pretty":
		options = append(options, glog.WithLoggerTypePretty())
	default:
		return nil, fmt.Errorf("logging: unsupported format %q", format)
	}

	return &Provider{root: glog.NewLogger(options...)}, nil
}

// Get returns the child logger for a component.
func (p *Provider) Get(name string) Logger {
	if p == nil || p.root == nil {
		return Nop()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return p.root
	}
	return p.root.GetLogger(name)
}

func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return glog.Trace
	case "debug":
		return glog.Debug
	case "info":
		return glog.Info
	case "warn", "warning":
		return glog.Warn
	case "error":
		return glog.Error
	default:
		return ""
	}
}

type nop struct{}

func (nop) Debug(string, ...any) {}
func (nop) Info(string, ...any)  {}
func (nop) Warn(string, ...any)  {}
func (nop) Error(string, ...any) {}

// Nop discards everything.
func Nop() Logger { return nop{} }
