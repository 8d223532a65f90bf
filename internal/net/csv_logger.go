package net

import (
	"encoding/csv"
	"os"
	"strconv"
)

// CSVLogger writes one row per epoch to a CSV file.
type CSVLogger struct {
	BaseCallback
	Filename string
	Append   bool

	file   *os.File
	writer *csv.Writer
}

// NewCSVLogger creates a new CSVLogger.
func NewCSVLogger(filename string, append bool) *CSVLogger {
	return &CSVLogger{
		Filename: filename,
		Append:   append,
	}
}

var csvHeader = []string{"epoch", "loss", "accuracy", "lr", "test_loss", "test_accuracy", "time_seconds"}

func (c *CSVLogger) OnTrainBegin(m *Model) {
	mode := os.O_CREATE | os.O_WRONLY
	if c.Append {
		mode |= os.O_APPEND
	} else {
		mode |= os.O_TRUNC
	}

	file, err := os.OpenFile(c.Filename, mode, 0o644)
	if err != nil {
		m.logger.Error().Err(err).Str("path", c.Filename).Msg("csv logger: open failed")
		return
	}
	c.file = file
	c.writer = csv.NewWriter(file)

	// Write header if not appending or if file is empty
	info, err := file.Stat()
	if err == nil && (info.Size() == 0 || !c.Append) {
		c.writer.Write(csvHeader)
		c.writer.Flush()
	}
}

func (c *CSVLogger) OnEpochEnd(epoch int, stats EpochStats, m *Model) {
	if c.writer == nil {
		return
	}

	testLoss, testAcc := "", ""
	if stats.Test != nil {
		testLoss = formatFloat(stats.Test.Loss)
		testAcc = formatFloat(stats.Test.Accuracy)
	}
	record := []string{
		strconv.Itoa(stats.Epoch),
		formatFloat(stats.Loss),
		formatFloat(stats.Accuracy),
		strconv.FormatFloat(stats.LearningRate, 'g', -1, 64),
		testLoss,
		testAcc,
		strconv.FormatFloat(stats.Duration.Seconds(), 'f', 2, 64),
	}

	if err := c.writer.Write(record); err != nil {
		m.logger.Error().Err(err).Str("path", c.Filename).Msg("csv logger: write failed")
	}
	c.writer.Flush()
}

func (c *CSVLogger) OnTrainEnd(*Model) {
	if c.file != nil {
		c.writer.Flush()
		c.file.Close()
		c.file = nil
		c.writer = nil
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
