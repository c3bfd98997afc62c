package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-ingest/internal/ingest"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
)

// maxListedErrors caps how many per-message failures a summary prints.
const maxListedErrors = 10

func row(label string, value any) string {
	return LabelStyle.Render(label) + fmt.Sprint(value) + "\n"
}

// RenderBatchSummary renders the counters of one batch run.
func RenderBatchSummary(title string, stats ingest.BatchStats, dryRun bool) string {
	var b strings.Builder
	b.WriteString(row("Messages found:", stats.Total))
	b.WriteString(row("Processed:", stats.Processed))
	stored := "Stored:"
	if dryRun {
		stored = "Parsed (dry run):"
	}
	b.WriteString(row(stored, SuccessStyle.Render(fmt.Sprint(stats.Stored))))
	b.WriteString(row("Duplicates:", SubtleStyle.Render(fmt.Sprint(stats.Duplicates))))
	b.WriteString(row("Unparsed:", WarningStyle.Render(fmt.Sprint(stats.Unparsed))))
	b.WriteString(row("Failed:", ErrorStyle.Render(fmt.Sprint(stats.Failed))))
	b.WriteString(row("Time taken:", stats.Duration.Round(time.Millisecond)))

	if len(stats.Errors) > 0 {
		ids := make([]string, 0, len(stats.Errors))
		for id := range stats.Errors {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		b.WriteString("\n")
		for i, id := range ids {
			if i == maxListedErrors {
				b.WriteString(SubtleStyle.Render(fmt.Sprintf("  … and %d more", len(ids)-maxListedErrors)) + "\n")
				break
			}
			b.WriteString(FormatError(fmt.Sprintf("%s: %v", id, stats.Errors[id])) + "\n")
		}
	}

	return RenderBox(title, strings.TrimRight(b.String(), "\n"))
}

// RenderStats renders storage monitoring counters.
func RenderStats(stats *model.Stats) string {
	var b strings.Builder
	b.WriteString(row("Emails:", stats.TotalEmails))
	b.WriteString(row("  parsed:", stats.ParsedEmails))
	b.WriteString(row("  unparsed:", stats.UnparsedEmails))
	b.WriteString(row("Transactions:", stats.TotalTransactions))
	b.WriteString(row("Merchants:", stats.TotalMerchants))
	if stats.LatestEmail != nil {
		b.WriteString(row("Latest email:", stats.LatestEmail.Format(time.RFC3339)))
	}

	providers := make([]string, 0, len(stats.EmailsByProvider))
	for p := range stats.EmailsByProvider {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	if len(providers) > 0 {
		b.WriteString("\n" + SubtleStyle.Render("By provider") + "\n")
		for _, p := range providers {
			b.WriteString(row("  "+p+":", stats.EmailsByProvider[p]))
		}
	}

	return RenderBox(ChartIcon+" Ingestion stats", strings.TrimRight(b.String(), "\n"))
}

// RenderPreview renders what a message would be stored as.
func RenderPreview(p *ingest.Preview) string {
	var b strings.Builder
	b.WriteString(row("Message:", p.MessageID))
	b.WriteString(row("From:", p.Sender))
	b.WriteString(row("Subject:", p.Subject))
	b.WriteString(row("Provider:", p.Provider))

	if p.Transaction == nil {
		b.WriteString("\n" + FormatWarning("no transaction found"))
		return RenderBox(MailIcon+" Preview", b.String())
	}

	txn := p.Transaction
	b.WriteString(row("Kind:", txn.Kind))
	b.WriteString(row("Channel:", txn.Channel))
	b.WriteString(row("Amount:", txn.Currency+" "+txn.Amount.StringFixed(2)))
	b.WriteString(row("Merchant:", txn.Merchant))
	b.WriteString(row("Date:", txn.Date.Format(time.RFC3339)))
	if txn.CardLast4 != "" {
		b.WriteString(row("Card:", "••••"+txn.CardLast4))
	}
	if txn.Reference != "" {
		b.WriteString(row("Reference:", txn.Reference))
	}
	b.WriteString(row("Key:", SubtleStyle.Render(p.Key)))

	return RenderBox(MailIcon+" Preview", strings.TrimRight(b.String(), "\n"))
}
