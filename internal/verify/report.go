package verify

import (
	"fmt"
	"io"
)

// Report section headers and messages.
const (
	reportHeader   = "=== GPU Environment Verification ==="
	reportSummary  = "=== Summary ==="
	reportSuccess  = "CUDA environment setup completed successfully!"
	reportFailure  = "CUDA environment setup failed. Please check the errors above."
	listItemFormat = "  %s\n"
	sectionFormat  = "[%s] %s\n"
	errorFormat    = "  error: %v\n"
)

// PrintReport writes a human-readable report of every check to w.
func PrintReport(w io.Writer, report Report) {
	fmt.Fprintln(w, reportHeader)
	fmt.Fprintln(w)

	for _, result := range report.Results {
		fmt.Fprintf(w, sectionFormat, result.Status, result.Name)

		for _, line := range result.Details {
			fmt.Fprintf(w, listItemFormat, line)
		}

		if result.Err != nil {
			fmt.Fprintf(w, errorFormat, result.Err)
		}

		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, reportSummary)

	if report.Success() {
		fmt.Fprintln(w, reportSuccess)

		return
	}

	fmt.Fprintln(w, reportFailure)
}
