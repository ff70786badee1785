package util

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Debug is the current debug level; DPrintf messages at a level above it are
// dropped.
var Debug uint64 = 0

var logger atomic.Pointer[zap.SugaredLogger]

func init() {
	l, err := zap.NewDevelopment()
	if err != nil {
		l = zap.NewNop()
	}
	logger.Store(l.Sugar())
}

// SetLogger replaces the sink used by DPrintf.
func SetLogger(l *zap.Logger) {
	logger.Store(l.Sugar())
}

func Logger() *zap.SugaredLogger {
	return logger.Load()
}

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		logger.Load().Debugf(format, a...)
	}
}

func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}

// SumOverflows reports whether n+m does not fit in a uint64.
func SumOverflows(n uint64, m uint64) bool {
	return n+m < n
}

func CloneByteSlice(s []byte) []byte {
	s2 := make([]byte, len(s))
	copy(s2, s)
	return s2
}
