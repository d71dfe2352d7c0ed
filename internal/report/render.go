// Package report renders reachability results as tables, JSON, YAML or CSV,
// and optionally uploads them to S3-compatible storage.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	sigsyaml "sigs.k8s.io/yaml"

	"github.com/kubereach/kubereach/internal/policy"
)

// Renderer writes reports in a fixed format. Color applies to the table
// format only.
type Renderer struct {
	Format string
	Color  bool
}

// RenderVerdict writes a single connection verdict.
func (r *Renderer) RenderVerdict(w io.Writer, conn policy.Connection, verdict policy.Verdict) error {
	switch r.Format {
	case "json":
		return writeJSON(w, verdictDocument{Connection: conn, Verdict: verdict})
	case "yaml":
		return writeYAML(w, verdictDocument{Connection: conn, Verdict: verdict})
	case "csv":
		cw := csv.NewWriter(w)
		records := [][]string{
			{"source", "destination", "port", "protocol", "allowed", "reason"},
			{
				conn.Source.String(),
				conn.Destination.String(),
				strconv.Itoa(int(conn.Port)),
				string(conn.Protocol),
				strconv.FormatBool(verdict.Allowed),
				verdict.Reason,
			},
		}
		if err := cw.WriteAll(records); err != nil {
			return fmt.Errorf("failed to write csv: %w", err)
		}
		return nil
	case "table", "":
		return r.renderVerdictTable(w, conn, verdict)
	default:
		return fmt.Errorf("unknown report format %q", r.Format)
	}
}

// RenderMatrix writes a full reachability matrix.
func (r *Renderer) RenderMatrix(w io.Writer, matrix *policy.Matrix) error {
	switch r.Format {
	case "json":
		return writeJSON(w, matrix)
	case "yaml":
		return writeYAML(w, matrix)
	case "csv":
		cw := csv.NewWriter(w)
		records := [][]string{{"source", "destination", "port", "allowed"}}
		for _, e := range matrix.Entries {
			records = append(records, []string{
				e.Source.String(),
				e.Destination.String(),
				e.Port.String(),
				strconv.FormatBool(e.Allowed),
			})
		}
		if err := cw.WriteAll(records); err != nil {
			return fmt.Errorf("failed to write csv: %w", err)
		}
		return nil
	case "table", "":
		return r.renderMatrixTable(w, matrix)
	default:
		return fmt.Errorf("unknown report format %q", r.Format)
	}
}

type verdictDocument struct {
	Connection policy.Connection `json:"connection"`
	Verdict    policy.Verdict    `json:"verdict"`
}

func (r *Renderer) renderVerdictTable(w io.Writer, conn policy.Connection, verdict policy.Verdict) error {
	var b strings.Builder

	mark, markStyle := denyMark, denyStyle
	if verdict.Allowed {
		mark, markStyle = allowMark, allowStyle
	}

	b.WriteString(r.style(titleStyle, conn.String()))
	b.WriteString("\n")
	b.WriteString(r.style(markStyle, mark))
	if verdict.Allowed {
		b.WriteString(" allowed\n")
	} else {
		b.WriteString(" denied\n")
	}

	if verdict.Reason != "" {
		b.WriteString(r.style(dimStyle, "  "+verdict.Reason))
		b.WriteString("\n")
	} else {
		b.WriteString(r.directionLine("egress", verdict.Egress))
		b.WriteString(r.directionLine("ingress", verdict.Ingress))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) directionLine(name string, dv policy.DirectionVerdict) string {
	var b strings.Builder
	b.WriteString("  ")
	b.WriteString(r.style(headerStyle, name))
	switch {
	case !dv.Protected:
		b.WriteString(" unprotected, default allow")
	case dv.Allowed:
		b.WriteString(" allowed by " + strings.Join(dv.AllowedBy, ", "))
	default:
		b.WriteString(" denied, no rule matched")
	}
	b.WriteString("\n")
	return b.String()
}

func (r *Renderer) renderMatrixTable(w io.Writer, matrix *policy.Matrix) error {
	var b strings.Builder

	b.WriteString(r.style(headerStyle,
		fmt.Sprintf("%-40s %-40s %-10s %s", "SOURCE", "DESTINATION", "PORT", "VERDICT")))
	b.WriteString("\n")

	for _, e := range matrix.Entries {
		verdict := r.style(denyStyle, denyMark+" deny")
		if e.Allowed {
			verdict = r.style(allowStyle, allowMark+" allow")
		}
		fmt.Fprintf(&b, "%-40s %-40s %-10s %s\n",
			e.Source.String(), e.Destination.String(), e.Port.String(), verdict)
	}

	b.WriteString(r.style(dimStyle,
		fmt.Sprintf("%d of %d connections allowed", matrix.AllowedCount(), len(matrix.Entries))))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) style(s interface{ Render(...string) string }, text string) string {
	if !r.Color {
		return text
	}
	return s.Render(text)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	data, err := sigsyaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	_, err = w.Write(data)
	return err
}
