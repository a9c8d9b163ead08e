package batch

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	"github.com/MeKo-Tech/evalocr/internal/pipeline"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ItemError is the serialized form of a failed file.
type ItemError struct {
	Kind     string         `json:"kind"`
	Reason   string         `json:"reason,omitempty"`
	Message  string         `json:"message"`
	Attempts []AttemptError `json:"attempts,omitempty"`
}

// AttemptError describes one failed strategy attempt.
type AttemptError struct {
	Strategy string `json:"strategy"`
	Kind     string `json:"kind"`
	Phase    string `json:"phase,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type jsonItem struct {
	File   string           `json:"file"`
	Result *pipeline.Result `json:"result,omitempty"`
	Error  *ItemError       `json:"error,omitempty"`
}

// formatBatchResults formats the batch results in the specified format.
func formatBatchResults(items []Item, format string, precision int) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(items, precision)
	case FormatCSV:
		return formatCSV(items, precision)
	case FormatText, "":
		return formatText(items), nil
	default:
		return "", fmt.Errorf("invalid output format: %s (must be one of: %s, %s, %s)", format, FormatText, FormatJSON, FormatCSV)
	}
}

// NewItemError converts a recognition error for output.
func NewItemError(err error) *ItemError {
	out := &ItemError{
		Kind:    string(ocrerr.KindOf(err)),
		Reason:  string(ocrerr.ReasonOf(err)),
		Message: ocrerr.UserMessage(err),
	}
	var e *ocrerr.Error
	if errors.As(err, &e) {
		for _, a := range e.Attempts {
			out.Attempts = append(out.Attempts, AttemptError{
				Strategy: a.Strategy,
				Kind:     string(a.Kind),
				Phase:    a.Phase,
				Reason:   string(a.Reason),
			})
		}
	}
	return out
}

// rounded returns a copy of res with the confidence rounded to precision
// decimal places; negative precision keeps it unchanged.
func rounded(res *pipeline.Result, precision int) *pipeline.Result {
	if res == nil || res.Confidence == nil || precision < 0 {
		return res
	}
	cp := *res
	scale := math.Pow(10, float64(precision))
	c := math.Round(*res.Confidence*scale) / scale
	cp.Confidence = &c
	return &cp
}

func formatJSON(items []Item, precision int) (string, error) {
	out := struct {
		Images []jsonItem `json:"images"`
	}{Images: make([]jsonItem, len(items))}

	for i, it := range items {
		out.Images[i] = jsonItem{File: it.File, Result: rounded(it.Result, precision)}
		if it.Err != nil {
			out.Images[i].Error = NewItemError(it.Err)
		}
	}

	bts, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bts) + "\n", nil
}

func formatCSV(items []Item, precision int) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.Write([]string{"file", "strategy", "confidence", "elapsed_ms", "text", "error"}); err != nil {
		return "", err
	}

	for _, it := range items {
		row := []string{it.File, "", "", "", "", ""}
		if res := rounded(it.Result, precision); res != nil {
			row[1] = res.StrategyUsed
			if res.Confidence != nil {
				row[2] = strconv.FormatFloat(*res.Confidence, 'f', max(precision, 0), 64)
			}
			row[3] = strconv.FormatInt(res.ElapsedMS, 10)
			row[4] = res.Text
		}
		if it.Err != nil {
			row[5] = ocrerr.UserMessage(it.Err)
		}
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

// formatText prints the recognized text. Several files get a "# file"
// header each; a single file prints its text alone.
func formatText(items []Item) string {
	var output strings.Builder
	for i, it := range items {
		if len(items) > 1 {
			if i > 0 {
				output.WriteString("\n")
			}
			output.WriteString("# " + it.File + "\n")
		}
		switch {
		case it.Err != nil:
			output.WriteString("error: " + ocrerr.UserMessage(it.Err) + "\n")
		case it.Result != nil:
			output.WriteString(it.Result.Text)
			if !strings.HasSuffix(it.Result.Text, "\n") {
				output.WriteString("\n")
			}
		}
	}
	return output.String()
}
