package logger

import (
	"go.uber.org/zap"
)

// Log is a no-op until InitLogger runs, so library code and tests can log
// unconditionally.
var Log = zap.NewNop()

func InitLogger() {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	Log = log
}

func SyncLogger() {
	_ = Log.Sync()
}
