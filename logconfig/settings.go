package logconfig

import (
	myLogger "github.com/sirupsen/logrus"
)

// This output format is used in the test (has terminal).
func ConfigDebugLogger() {
	// configure log facility in this test
	myLogger.SetReportCaller(true)
	myLogger.SetLevel(myLogger.DebugLevel)
	myLogger.SetFormatter(&myLogger.TextFormatter{
		ForceColors:            true,
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
}

func ConfigInfoLogger() {
	// configure log facility in this test
	myLogger.SetReportCaller(false)
	myLogger.SetLevel(myLogger.InfoLevel)
	myLogger.SetFormatter(&myLogger.TextFormatter{
		ForceColors:            true,
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
}

// This output format is used in production.
func ConfigProductionLogger() {
	// configure log facility in this test
	myLogger.SetLevel(myLogger.InfoLevel)
}

// ConfigLoggerByLevel picks one of the above from a level name,
// eg. the LOG_LEVEL setting. Unknown names fall back to info.
func ConfigLoggerByLevel(level string) {
	switch level {
	case "debug", "trace":
		ConfigDebugLogger()
	case "production", "prod":
		ConfigProductionLogger()
	default:
		lvl, err := myLogger.ParseLevel(level)
		if err != nil || lvl > myLogger.InfoLevel {
			ConfigInfoLogger()
			return
		}
		ConfigInfoLogger()
		myLogger.SetLevel(lvl)
	}
}
