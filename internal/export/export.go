package export

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"catalogload/internal/runner"
)

// Files lists the paths written for a prefix.
func Files(prefix string) (csvPath, jsonPath, summaryPath string) {
	return prefix + ".csv", prefix + ".json", prefix + "_summary.json"
}

// WriteAll writes the CSV, JSON and summary exports for prefix.
func WriteAll(prefix, label, url string, results []runner.Result, summary Summary) error {
	csvPath, jsonPath, summaryPath := Files(prefix)
	if err := ExportCSV(results, label, url, csvPath); err != nil {
		return err
	}
	if err := ExportJSON(results, jsonPath); err != nil {
		return err
	}
	return ExportSummary(summary, summaryPath)
}

// ExportCSV exports results to a JMeter-compatible CSV file.
// Schema: timeStamp,elapsed,label,responseCode,responseMessage,threadName,dataType,success,failureMessage,bytes,sentBytes,grpThreads,allThreads,URL,Latency,IdleTime,Connect
func ExportCSV(results []runner.Result, label, url, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "create csv export")
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := []string{
		"timeStamp", "elapsed", "label", "responseCode", "responseMessage",
		"threadName", "dataType", "success", "failureMessage", "bytes",
		"sentBytes", "grpThreads", "allThreads", "URL", "Latency", "IdleTime", "Connect",
	}
	if err := w.Write(header); err != nil {
		return errors.Wrap(err, "write csv header")
	}

	for _, res := range results {
		elapsed := strconv.FormatInt(res.Latency.Milliseconds(), 10)

		failure := res.Error
		if failure == "" && len(res.FailedChecks) > 0 {
			failure = "failed checks: " + strings.Join(res.FailedChecks, "; ")
		}

		record := []string{
			strconv.FormatInt(res.TimeStamp.UnixMilli(), 10),
			elapsed,
			label,
			strconv.Itoa(res.Status),
			http.StatusText(res.Status),
			"VU-" + strconv.FormatInt(res.VU, 10),
			"text",
			strconv.FormatBool(res.Success),
			failure,
			strconv.FormatInt(res.Bytes, 10),
			"0", // request bodies are empty
			"1",
			"1",
			url,
			elapsed,
			"0",
			"0", // connect time is not measured separately
		}
		if err := w.Write(record); err != nil {
			return errors.Wrap(err, "write csv record")
		}
	}

	w.Flush()
	return errors.Wrap(w.Error(), "flush csv export")
}

// ExportJSON exports results to a JSON file.
func ExportJSON(results []runner.Result, filename string) error {
	if results == nil {
		results = []runner.Result{}
	}
	return writeJSON(results, filename)
}

// ExportSummary writes the run summary as indented JSON.
func ExportSummary(summary Summary, filename string) error {
	return writeJSON(summary, filename)
}

func writeJSON(v interface{}, filename string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode export")
	}
	return errors.Wrapf(os.WriteFile(filename, data, 0644), "write %s", filename)
}
