package importer

import (
	"fmt"
	"strings"
)

// maxReportErrorDetails caps the per-row error section so a fully failed
// upload cannot produce an unbounded report.
const maxReportErrorDetails = 50

// BuildReport renders the plain-text import report. The layout is fixed so
// repeated runs over the same data produce byte-identical reports.
func BuildReport(job *Job, counts Counts, outcomes []RowOutcome) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Reporte de Importación - %s\n", job.FileName)
	fmt.Fprintf(&b, "Fecha: %s\n", job.UploadedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Estado: %s\n", job.Status.Display())
	fmt.Fprintf(&b, "Tipo de archivo: %s\n", job.FileType.Display())
	b.WriteString("\n")

	fmt.Fprintf(&b, "Total de registros: %d\n", counts.Total)
	fmt.Fprintf(&b, "Exitosos: %d\n", counts.Success)
	fmt.Fprintf(&b, "Errores: %d\n", counts.Errors)
	fmt.Fprintf(&b, "Advertencias: %d\n", counts.Warnings)

	if len(job.Errors) > 0 {
		b.WriteString("\n=== ERRORES ===\n")
		for _, e := range job.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}

	var failed []RowOutcome
	for _, o := range outcomes {
		if o.Status == OutcomeError {
			failed = append(failed, o)
		}
	}
	if len(failed) > 0 {
		b.WriteString("\n=== DETALLE DE ERRORES ===\n")
		for i, o := range failed {
			if i == maxReportErrorDetails {
				fmt.Fprintf(&b, "... y %d errores más\n", len(failed)-maxReportErrorDetails)
				break
			}
			fmt.Fprintf(&b, "Fila %d: %s\n", o.RowNumber, o.Message)
		}
	}
	return b.String()
}
