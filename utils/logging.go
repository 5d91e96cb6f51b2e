package utils

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

//Printer is a leveled print helper sitting on top of a zap logger
type Printer struct {
	print func(template string, args ...interface{})
}

//Printf formats according to a format specifier and logs the result
func (p *Printer) Printf(format string, v ...interface{}) {
	p.print(strings.TrimSuffix(format, "\n"), v...)
}

//Println logs the operands, separated by spaces
func (p *Printer) Println(v ...interface{}) {
	p.print(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

var (
	Trace   *Printer
	Info    *Printer
	Fail    *Printer
	Warning *Printer
	Error   *Printer

	logger = zap.NewNop()
)

func init() {
	setPrinters(logger)
}

//Init the logging function. Output at or above level goes to out, errors always go to errOut.
func Init(level zapcore.Level, out, errOut io.Writer) {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = ""
	cfg.CallerKey = ""
	enc := zapcore.NewConsoleEncoder(cfg)

	below := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l < zapcore.ErrorLevel
	})
	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.AddSync(out), below),
		zapcore.NewCore(enc, zapcore.AddSync(errOut), zapcore.ErrorLevel),
	)
	logger = zap.New(core)
	setPrinters(logger)
}

//Logger returns the process logger, suitable for handing to library options
func Logger() *zap.Logger {
	return logger
}

func setPrinters(l *zap.Logger) {
	s := l.Sugar()
	Trace = &Printer{print: s.Debugf}
	Info = &Printer{print: s.Infof}
	Fail = &Printer{print: s.Warnf}
	Warning = &Printer{print: s.Warnf}
	Error = &Printer{print: s.Errorf}
}
