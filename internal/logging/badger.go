package logging

import "strings"

// Badger adapts a Logger to badger's logger interface. Badger terminates
// its messages with a newline which is trimmed here.
type Badger struct {
	L *Logger
}

func (b *Badger) Errorf(format string, args ...interface{}) {
	b.L.Error(strings.TrimSuffix(format, "\n"), args...)
}

func (b *Badger) Warningf(format string, args ...interface{}) {
	b.L.Warn(strings.TrimSuffix(format, "\n"), args...)
}

func (b *Badger) Infof(format string, args ...interface{}) {
	b.L.Debug(strings.TrimSuffix(format, "\n"), args...)
}

func (b *Badger) Debugf(format string, args ...interface{}) {
	b.L.Trace(strings.TrimSuffix(format, "\n"), args...)
}
