package output

// Output pairs the terminal logger with the error log file
type Output struct {
	Logger      Logger
	ErrorLogger *ErrorLogger
}

// NewOutput creates the error log's directory and returns an Output writing to it
func NewOutput(logger Logger, errorLogPath string, maxSizeMB, maxFiles int) (*Output, error) {
	if err := EnsureLogDirectory(errorLogPath); err != nil {
		return nil, err
	}
	return &Output{
		Logger:      logger,
		ErrorLogger: NewErrorLogger(errorLogPath, maxSizeMB, maxFiles),
	}, nil
}

// Report prints entry to the terminal and appends it to the error log
func (o *Output) Report(entry Entry) {
	o.Logger.Error("%s", entry.terminal())
	if err := o.ErrorLogger.Write(entry); err != nil {
		o.Logger.Error("Failed to write to error log: %v", err)
	}
}
