package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/lysyi3m/wokeometro/app/database"
	"github.com/lysyi3m/wokeometro/app/scoring"
	"github.com/lysyi3m/wokeometro/app/store"
)

const (
	ChannelTitle       = "Wokeómetro: últimas revisiones"
	ChannelDescription = "Títulos revisados recientemente por el equipo editorial"
	FeedPath           = "/feeds/reviewed.xml"
)

// Entry pairs a review history record with the title it refers to. Title is
// nil when the record no longer exists in the catalog.
type Entry struct {
	Review database.ReviewRecord
	Title  *store.Title
}

type Generator struct {
	baseURL string
	version string
	flags   *scoring.FlagCatalog
}

// NewGenerator builds a generator whose links are rooted at baseURL. flags is
// optional and only used to render flag labels.
func NewGenerator(baseURL, version string, flags *scoring.FlagCatalog) *Generator {
	return &Generator{
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		flags:   flags,
	}
}

// Run renders entries, newest first, as an RSS 2.0 document.
func (g *Generator) Run(entries []Entry) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", ChannelTitle, 4)
	g.writeElement(&buf, "link", g.baseURL+"/", 4)
	g.writeElement(&buf, "description", ChannelDescription, 4)

	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(g.baseURL+FeedPath)))

	lastBuildDate := time.Now().In(time.Local)
	if len(entries) > 0 {
		lastBuildDate = entries[0].Review.ReviewedAt.In(time.Local)
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Wokeometro/%s", g.version), 4)
	g.writeElement(&buf, "language", "es", 4)

	for _, entry := range entries {
		g.writeItem(&buf, entry)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, entry Entry) {
	review := entry.Review
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(review.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", g.itemTitle(entry), 6)
	g.writeElement(buf, "link", fmt.Sprintf("%s/api/titles/%s", g.baseURL, review.TitleID), 6)
	g.writeElement(buf, "description", g.itemDescription(review), 6)
	g.writeElement(buf, "pubDate", review.ReviewedAt.In(time.Local).Format(time.RFC1123Z), 6)

	for _, id := range review.Flags {
		g.writeElement(buf, "category", g.flagLabel(id), 6)
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) itemTitle(entry Entry) string {
	name := entry.Review.TitleID
	if entry.Title != nil {
		name = entry.Title.Title
		if entry.Title.Year > 0 {
			name = fmt.Sprintf("%s (%d)", name, entry.Title.Year)
		}
	}
	return fmt.Sprintf("%s: %s/10", name, formatScore(entry.Review.Score))
}

func (g *Generator) itemDescription(review database.ReviewRecord) string {
	bucket := scoring.BucketFor(review.Score)

	var b strings.Builder
	fmt.Fprintf(&b, "Puntuación %s/10 (%s, antes %s/10).",
		formatScore(review.Score), bucket.Label, formatScore(review.PreviousScore))

	if len(review.Flags) > 0 {
		labels := make([]string, 0, len(review.Flags))
		for _, id := range review.Flags {
			labels = append(labels, g.flagLabel(id))
		}
		fmt.Fprintf(&b, " Señales: %s.", strings.Join(labels, ", "))
	}

	if review.Notes != "" {
		b.WriteString(" Notas: ")
		b.WriteString(review.Notes)
	}

	return b.String()
}

func (g *Generator) flagLabel(id string) string {
	if g.flags == nil {
		return id
	}
	if flag, ok := g.flags.Get(id); ok {
		return flag.Label
	}
	return id
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
