package elink

import (
	"elink/internal/mask"

	"github.com/sirupsen/logrus"
)

// Logger is the package-level logrus instance. Callers embedding elink in
// a larger service may replace it (e.g. redirect output, change
// formatter) before creating any sessions.
var Logger = logrus.StandardLogger()

func printerLog(printerID string) *logrus.Entry {
	return Logger.WithField("printer_id", mask.PrinterID(printerID))
}
