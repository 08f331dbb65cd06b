package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/telekom/auditlog/pkg/capture"
)

// BatchRow is one persisted (or failed) batch of a replay.
type BatchRow struct {
	Transaction string   `json:"transaction" yaml:"transaction"`
	Events      int      `json:"events" yaml:"events"`
	Sources     []string `json:"sources" yaml:"sources"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func WriteSourceTable(w io.Writer, sources []capture.Source, blacklist []string) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tPRIMARY_KEY\tTRACKED\tASSOCIATIONS\tMODE\tFOREIGN_KEYS")
	for i := range sources {
		s := &sources[i]
		bl := blacklist
		if s.Blacklist != nil {
			bl = s.Blacklist
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Name,
			strings.Join(s.PrimaryKey, ","),
			dash(strings.Join(capture.TrackedFields(s, bl), ",")),
			dash(formatAssociations(s.Associations)),
			dash(string(s.AssociationsMode)),
			dash(formatForeignKeys(s.ForeignKeys)))
	}
	_ = tw.Flush()
}

func WriteBatchTable(w io.Writer, rows []BatchRow) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TRANSACTION\tEVENTS\tSOURCES\tSTATUS")
	for _, r := range rows {
		status := "ok"
		if r.Error != "" {
			status = "failed: " + r.Error
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.Transaction, r.Events, dash(strings.Join(r.Sources, ",")), status)
	}
	_ = tw.Flush()
}

func formatAssociations(as []capture.Association) string {
	parts := make([]string, 0, len(as))
	for _, a := range as {
		parts = append(parts, fmt.Sprintf("%s(%s)", a.Property, a.Kind))
	}
	return strings.Join(parts, ",")
}

func formatForeignKeys(fks []capture.ForeignKey) string {
	parts := make([]string, 0, len(fks))
	for _, fk := range fks {
		parts = append(parts, fk.Collection+"."+fk.Field)
	}
	return strings.Join(parts, ",")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
