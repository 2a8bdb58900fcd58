package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/roach88/storeclone/internal/engine"
	"github.com/roach88/storeclone/internal/ledger"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Run finished but some product/store pairs failed
	ExitCommandError = 2 // Command error (bad config, unreachable ledger, bad flags)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// textRenderer is implemented by payloads with a human-readable form.
type textRenderer interface {
	renderText(w io.Writer) error
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: data}
		if r, ok := data.(reportView); ok {
			resp.RunID = r.RunID
		}
		return json.NewEncoder(f.Writer).Encode(resp)
	}

	if r, ok := data.(textRenderer); ok {
		return r.renderText(f.Writer)
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// reportView prints a run report.
type reportView struct {
	*engine.Report
}

func (v reportView) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Report)
}

func (v reportView) renderText(w io.Writer) error {
	r := v.Report
	fmt.Fprintf(w, "Run %s", r.RunID)
	if r.Window != "" {
		fmt.Fprintf(w, " (window %s)", r.Window)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Discovered %d, added %d, processed %d products\n", r.Discovered, len(r.Added), r.Processed)
	fmt.Fprintf(w, "Pairs: %d succeeded, %d failed, %d skipped\n", r.Succeeded, r.Failed, r.Skipped)
	if len(r.Archived) > 0 {
		fmt.Fprintf(w, "Archived: %s\n", strings.Join(r.Archived, ", "))
	}
	if len(r.Outcomes) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tSTORE\tACTION\tSTATUS\tDETAIL")
	for _, o := range r.Outcomes {
		transition := o.To
		if o.From != "" && o.To != "" && o.From != o.To {
			transition = o.From + " -> " + o.To
		} else if o.To == "" {
			transition = o.From
		}
		detail := o.Reason
		if o.Error != "" {
			detail = o.Error
		} else if detail == "" {
			detail = o.GID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.ProductID, dash(o.Store), o.Action, dash(transition), detail)
	}
	return tw.Flush()
}

// recordsView prints ledger rows with one status column per store.
type recordsView struct {
	Stores  []string        `json:"stores"`
	Records []ledger.Record `json:"-"`
}

type recordJSON struct {
	Row        int                  `json:"row"`
	ProductID  string               `json:"product_id"`
	Title      string               `json:"title"`
	SalesCount int                  `json:"sales_count"`
	Stores     map[string]storeJSON `json:"stores"`
}

type storeJSON struct {
	Status      string `json:"status"`
	GID         string `json:"gid,omitempty"`
	ClonedTitle string `json:"cloned_title,omitempty"`
	Invalid     bool   `json:"invalid,omitempty"`
}

func (v recordsView) MarshalJSON() ([]byte, error) {
	out := struct {
		Stores  []string     `json:"stores"`
		Records []recordJSON `json:"records"`
	}{Stores: v.Stores, Records: make([]recordJSON, 0, len(v.Records))}
	for _, rec := range v.Records {
		rj := recordJSON{
			Row:        rec.Row,
			ProductID:  rec.ProductID,
			Title:      rec.Title,
			SalesCount: rec.SalesCount,
			Stores:     make(map[string]storeJSON, len(v.Stores)),
		}
		for _, key := range v.Stores {
			f := rec.Store(key)
			rj.Stores[key] = storeJSON{Status: cellStatus(f), GID: f.GID, ClonedTitle: f.ClonedTitle, Invalid: f.Invalid}
		}
		out.Records = append(out.Records, rj)
	}
	return json.Marshal(out)
}

func (v recordsView) renderText(w io.Writer) error {
	if len(v.Records) == 0 {
		_, err := fmt.Fprintln(w, "No products.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := []string{"PRODUCT", "TITLE", "SALES"}
	for _, key := range v.Stores {
		header = append(header, ledger.Suffix(key))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, rec := range v.Records {
		cols := []string{rec.ProductID, truncate(rec.Title, 40), fmt.Sprint(rec.SalesCount)}
		for _, key := range v.Stores {
			cols = append(cols, cellStatus(rec.Store(key)))
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	return tw.Flush()
}

// listView prints a titled list of ids or lines.
type listView struct {
	Title string   `json:"-"`
	Items []string `json:"items"`
	Empty string   `json:"-"`
}

func (v listView) renderText(w io.Writer) error {
	if len(v.Items) == 0 {
		_, err := fmt.Fprintln(w, v.Empty)
		return err
	}
	fmt.Fprintf(w, "%s (%d):\n", v.Title, len(v.Items))
	for _, item := range v.Items {
		fmt.Fprintf(w, "  %s\n", item)
	}
	return nil
}

func cellStatus(f ledger.StoreFields) string {
	if f.Invalid {
		return f.RawStatus + " (invalid)"
	}
	return f.Status.String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
