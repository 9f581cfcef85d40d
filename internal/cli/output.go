package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lithammer/dedent"

	"github.com/raine/hotpotato/internal/model"
	"github.com/raine/hotpotato/internal/storage"
	"github.com/raine/hotpotato/internal/vision"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	priceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

var listingTemplate = strings.TrimSpace(dedent.Dedent(`
	%s  %s
	%s
	%s
	%s
`))

func renderListing(l model.Listing) string {
	meta := fmt.Sprintf("id %s · %s", l.ID, l.CreatedAt.Local().Format("2006-01-02 15:04"))
	if l.DetectedItem != "" {
		meta += " · " + l.DetectedItem
	}
	return fmt.Sprintf(listingTemplate,
		titleStyle.Render(l.Title),
		priceStyle.Render("$"+model.FormatPrice(l.Price)),
		l.Description,
		mutedStyle.Render(l.ImageURL),
		mutedStyle.Render(meta),
	)
}

func renderListingRow(l model.Listing) string {
	return fmt.Sprintf("%s  %s  %s",
		mutedStyle.Render(l.ID),
		priceStyle.Render(fmt.Sprintf("%8s", "$"+model.FormatPrice(l.Price))),
		l.Title,
	)
}

func renderDetection(d *vision.DetectionResult) string {
	if d == nil {
		return mutedStyle.Render("no item detected")
	}
	band := model.BandFor(d.Confidence)
	return fmt.Sprintf("%s %s", d.DetectedItem, mutedStyle.Render(fmt.Sprintf("(%d%% confidence, %s)", d.Confidence, band)))
}

func renderRun(r storage.Run) string {
	line := fmt.Sprintf("%s  %-20s  %s",
		r.UpdatedAt.Local().Format("2006-01-02 15:04"),
		r.Stage,
		r.ImageRef,
	)
	if r.DetectedItem != "" {
		line += "  " + r.DetectedItem
	}
	if r.ListingID != "" {
		line += "  " + mutedStyle.Render("→ "+r.ListingID)
	}
	if r.Error != "" {
		line += "  " + errorStyle.Render(r.Error)
	}
	return line
}

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, successStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

func printError(w io.Writer, msg string) {
	fmt.Fprintln(w, errorStyle.Render("✗ "+msg))
}

func printMuted(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf(format, args...)))
}

func pluralize(singular string, plural string, count int) string {
	s := plural
	if count == 1 {
		s = singular
	}
	return fmt.Sprintf("%d %s", count, s)
}
