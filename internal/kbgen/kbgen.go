// Package kbgen turns a scraped waste-statistics snapshot into the markdown
// knowledge base the retrieval pipeline indexes. One snippet file per topic,
// plus an index and a combined document.
package kbgen

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const sourceFooter = "\n*Source: NEA Waste Statistics Report*\n"

// Stat is a single scraped metric.
type Stat struct {
	Metric string `json:"metric"`
	Value  string `json:"value"`
	Unit   string `json:"unit"`
	Year   string `json:"year"`
}

// KeyStatistics groups the headline numbers of a snapshot.
type KeyStatistics struct {
	KeyHighlights  []Stat `json:"key_highlights"`
	RecyclingRates []Stat `json:"recycling_rates"`
	WasteTrends    []Stat `json:"waste_trends"`
}

// Table is a scraped statistics table.
type Table struct {
	Title   string     `json:"title"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Section is a prose section of the scraped page.
type Section struct {
	Heading string   `json:"heading"`
	Content []string `json:"content"`
}

// Metadata carries document-level facts extracted during scraping.
type Metadata struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Date     string `json:"date"`
	Language string `json:"language"`
}

// Snapshot is the scraped JSON artifact this generator consumes.
type Snapshot struct {
	URL              string                       `json:"url"`
	ScrapedAt        string                       `json:"scraped_at"`
	Metadata         Metadata                     `json:"trafilatura_metadata"`
	KeyStatistics    KeyStatistics                `json:"key_statistics"`
	StatisticsTables []Table                      `json:"statistics_tables"`
	ContentSections  []Section                    `json:"content_sections"`
	AnnualData       map[string]map[string]string `json:"annual_data"`
}

// Snippet is one generated markdown document.
type Snippet struct {
	ID      string
	Content string
}

// LoadSnapshot reads and decodes a scraped snapshot file.
func LoadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Snippets produces every snippet the snapshot supports, in a stable order.
func Snippets(snap Snapshot) []Snippet {
	var out []Snippet
	out = append(out, metadataSnippet(snap))
	out = append(out, statSnippets(snap.KeyStatistics)...)
	out = append(out, tableSnippets(snap.StatisticsTables)...)
	out = append(out, contentSnippets(snap.ContentSections)...)
	out = append(out, annualSnippets(snap.AnnualData)...)
	return out
}

// Generate writes the snippets, an index, and the combined knowledge base
// under outDir. Snippet files land in outDir/snippets.
func Generate(snap Snapshot, outDir string, now time.Time) (int, error) {
	snippetsDir := filepath.Join(outDir, "snippets")
	if err := os.MkdirAll(snippetsDir, 0o755); err != nil {
		return 0, err
	}

	snippets := Snippets(snap)
	for _, s := range snippets {
		path := filepath.Join(snippetsDir, s.ID+".md")
		if err := os.WriteFile(path, []byte(s.Content), 0o644); err != nil {
			return 0, err
		}
	}

	stamp := now.Format("2006-01-02 15:04:05")
	if err := os.WriteFile(filepath.Join(outDir, "index.md"), []byte(indexFile(snippets, stamp)), 0o644); err != nil {
		return 0, err
	}
	if err := os.WriteFile(filepath.Join(outDir, "complete_knowledge_base.md"), []byte(combinedFile(snippets, stamp)), 0o644); err != nil {
		return 0, err
	}
	return len(snippets), nil
}

func metadataSnippet(snap Snapshot) Snippet {
	var b strings.Builder
	b.WriteString("# Document Metadata\n\n")
	fmt.Fprintf(&b, "- **Source URL**: %s\n", snap.URL)
	fmt.Fprintf(&b, "- **Scraped At**: %s\n", snap.ScrapedAt)
	if snap.Metadata.Title != "" {
		fmt.Fprintf(&b, "- **Title**: %s\n", snap.Metadata.Title)
	}
	if snap.Metadata.Author != "" {
		fmt.Fprintf(&b, "- **Author**: %s\n", snap.Metadata.Author)
	}
	if snap.Metadata.Date != "" {
		fmt.Fprintf(&b, "- **Publication Date**: %s\n", snap.Metadata.Date)
	}
	if snap.Metadata.Language != "" {
		fmt.Fprintf(&b, "- **Language**: %s\n", snap.Metadata.Language)
	}
	b.WriteString(sourceFooter)
	return Snippet{ID: "metadata", Content: b.String()}
}

func statSnippets(stats KeyStatistics) []Snippet {
	groups := []struct {
		id    string
		title string
		stats []Stat
	}{
		{"key_highlights", "Key Waste Management Highlights", stats.KeyHighlights},
		{"recycling_rates", "Recycling Rate Trends", stats.RecyclingRates},
		{"waste_trends", "Waste Generation Trends", stats.WasteTrends},
	}
	var out []Snippet
	for _, g := range groups {
		if len(g.stats) == 0 {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n\n", g.title)
		for _, s := range g.stats {
			fmt.Fprintf(&b, "- **%s**: %s%s (%s)\n", s.Metric, s.Value, s.Unit, s.Year)
		}
		b.WriteString(sourceFooter)
		out = append(out, Snippet{ID: g.id, Content: b.String()})
	}
	return out
}

func tableSnippets(tables []Table) []Snippet {
	var out []Snippet
	for i, t := range tables {
		if len(t.Rows) == 0 {
			continue
		}
		title := t.Title
		if title == "" {
			title = fmt.Sprintf("Table %d", i+1)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n\n", title)
		if len(t.Headers) > 0 {
			fmt.Fprintf(&b, "| %s |\n", strings.Join(t.Headers, " | "))
			fmt.Fprintf(&b, "| %s |\n", strings.Join(repeat("---", len(t.Headers)), " | "))
		}
		for _, row := range t.Rows {
			fmt.Fprintf(&b, "| %s |\n", strings.Join(row, " | "))
		}
		b.WriteString(sourceFooter)
		out = append(out, Snippet{
			ID:      fmt.Sprintf("table_%d_%s", i+1, slug(title)),
			Content: b.String(),
		})
	}
	return out
}

func contentSnippets(sections []Section) []Snippet {
	var out []Snippet
	for i, s := range sections {
		if len(s.Content) == 0 {
			continue
		}
		heading := s.Heading
		if heading == "" {
			heading = fmt.Sprintf("Section %d", i+1)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n\n", heading)
		for _, p := range s.Content {
			if strings.TrimSpace(p) == "" {
				continue
			}
			b.WriteString(p)
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimPrefix(sourceFooter, "\n"))
		out = append(out, Snippet{
			ID:      fmt.Sprintf("content_%d_%s", i+1, slug(heading)),
			Content: b.String(),
		})
	}
	return out
}

func annualSnippets(annual map[string]map[string]string) []Snippet {
	years := make([]string, 0, len(annual))
	for y := range annual {
		years = append(years, y)
	}
	sort.Strings(years)

	var out []Snippet
	for _, year := range years {
		var b strings.Builder
		fmt.Fprintf(&b, "# Annual Waste Data - %s\n\n", year)
		keys := make([]string, 0, len(annual[year]))
		for k := range annual[year] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := annual[year][k]
			switch {
			case strings.HasPrefix(k, "rate_"):
				fmt.Fprintf(&b, "- **Recycling Rate**: %s\n", v)
			case strings.HasPrefix(k, "value_"):
				fmt.Fprintf(&b, "- **Waste Generated**: %s\n", v)
			default:
				fmt.Fprintf(&b, "- **%s**: %s\n", titleCase(strings.ReplaceAll(k, "_", " ")), v)
			}
		}
		b.WriteString(sourceFooter)
		out = append(out, Snippet{ID: "annual_data_" + year, Content: b.String()})
	}
	return out
}

func indexFile(snippets []Snippet, stamp string) string {
	var b strings.Builder
	b.WriteString("# NEA Waste Statistics Knowledge Base Index\n\n")
	fmt.Fprintf(&b, "Generated on: %s\n\n", stamp)
	b.WriteString("## Available Snippets\n\n")
	for _, s := range snippets {
		fmt.Fprintf(&b, "- **%s**: %s\n", s.ID, snippetTitle(s))
	}
	return b.String()
}

func combinedFile(snippets []Snippet, stamp string) string {
	var b strings.Builder
	b.WriteString("# NEA Waste Statistics - Complete Knowledge Base\n\n")
	fmt.Fprintf(&b, "Generated on: %s\n\n", stamp)
	b.WriteString("---\n\n")
	for _, s := range snippets {
		b.WriteString(s.Content)
		b.WriteString("\n\n---\n\n")
	}
	return b.String()
}

var titleRe = regexp.MustCompile(`(?m)^# (.+)$`)

func snippetTitle(s Snippet) string {
	if m := titleRe.FindStringSubmatch(s.Content); m != nil {
		return m[1]
	}
	return titleCase(strings.ReplaceAll(s.ID, "_", " "))
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "_")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}
