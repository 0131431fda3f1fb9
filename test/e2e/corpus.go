// Package e2e runs the archive, export and search pipelines over a synthetic Lotus scrape.
package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const pageTemplate = `<html><head><title>%[1]s</title></head><body>
<div align="center"><b><font size="4">Logbook Entry</font></b></div>
<table width="100%%" border="1"><tr>
<td bgcolor="#EFEFEF" width="1%%"><font size="2">Page</font>%[2]s</td>
<td><font size="2">Subject</font><font size="2">%[1]s</font><font size="2">Authors</font><font size="2">%[3]s</font><font size="2">Categories</font><font size="2">%[4]s</font><font size="2">Date</font><font size="2">%[5]s</font></td>
</tr></table>
%[6]s
<a href="#top">top</a>
</body></html>`

// Entry is one page of the synthetic scrape.
type Entry struct {
	File       string
	Title      string
	Number     string
	Authors    string
	Categories string
	Date       string
	Body       string
	// Marker is a word that only this entry contains.
	Marker    string
	Responses []Entry
}

func (e Entry) html() string {
	return fmt.Sprintf(pageTemplate, e.Title, e.Number, e.Authors, e.Categories, e.Date, e.Body)
}

// Corpus is a scrape written to disk plus the counts the pipelines should report for it.
type Corpus struct {
	Root         string
	ContentsPage string
	Entries      []Entry

	Pages       int
	Posts       int
	Skipped     int
	Clashes     int
	MaxNumber   int
	Comments    int
	SkippedResp int
	Images      int
	Attachments int
}

// Special entries of the corpus.
const (
	clashingIndex   = 3 // reuses the page number of entry 1
	nonNumericIndex = 5
	authorlessIndex = 7
	silentReply     = 9 // its response has no author
)

var authors = []string{"Alice Smith", "Bob", "Carol"}

// BuildCorpus writes n entries under root. Entry i links to entry i-1, every third entry
// embeds the same image, entries 2 and 4 attach the same text file, and every fourth entry
// starting at 1 has a response. The contents page lists entries newest first.
func BuildCorpus(root string, n int) (*Corpus, error) {
	c := &Corpus{Root: root, ContentsPage: filepath.Join(root, "contents.html")}
	files := map[string][]byte{
		"img/plot.png":        []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDRplot"),
		"att/$FILE/notes.txt": []byte("Calibration notes: offset 0.3 mrad, gain nominal.\n"),
		"index.html":          []byte("<html><body><p>Lotus index</p></body></html>"),
	}
	for i := 0; i < n; i++ {
		e := Entry{
			File:       fmt.Sprintf("entry%02d?OpenDocument.html", i),
			Title:      fmt.Sprintf("Shift report %d", i),
			Number:     strconv.Itoa(i + 1),
			Authors:    authors[i%len(authors)],
			Categories: "Lab",
			Date:       fmt.Sprintf("%02d/%02d/2008", 1+i%12, 1+i),
			Marker:     fmt.Sprintf("marker%02d", i),
		}
		switch i {
		case clashingIndex:
			e.Number = "2"
		case nonNumericIndex:
			e.Number = "n/a"
		case authorlessIndex:
			e.Authors = ""
		}
		if i%2 == 0 {
			e.Categories = "Lab, Optics"
		}
		var body strings.Builder
		fmt.Fprintf(&body, "<p>Entry %s.</p>\n", e.Marker)
		if i > 0 {
			fmt.Fprintf(&body, "<p>Follows <a href=\"entry%02d%%3FOpenDocument.html\">the previous shift</a>.</p>\n", i-1)
		}
		if i%3 == 0 {
			body.WriteString("<p><img src=\"img/plot.png\"></p>\n")
		}
		if i == 2 || i == 4 {
			body.WriteString("<p><a href=\"att/%24FILE/notes.txt\">notes</a></p>\n")
		}
		e.Body = body.String()

		if i%4 == 1 {
			reply := Entry{
				File:       fmt.Sprintf("reply%02d?OpenDocument.html", i),
				Title:      "Re: " + e.Title,
				Number:     e.Number + ".1",
				Authors:    "Dave",
				Categories: "Lab",
				Date:       fmt.Sprintf("%02d/%02d/2008", 1+i%12, 2+i),
				Body:       fmt.Sprintf("<p>Reply to %s.</p>", e.Marker),
			}
			if i == silentReply {
				reply.Authors = ""
				c.SkippedResp++
			} else {
				c.Comments++
			}
			e.Responses = append(e.Responses, reply)
			files[reply.File] = []byte(reply.html())
		}
		files[e.File] = []byte(e.html())
		c.Entries = append(c.Entries, e)

		c.Pages++
		if e.Authors == "" {
			c.Skipped++
			continue
		}
		c.Posts++
		if i == clashingIndex || i == nonNumericIndex {
			c.Clashes++
		} else if num, _ := strconv.Atoi(e.Number); num > c.MaxNumber {
			c.MaxNumber = num
		}
		if i%3 == 0 {
			c.Images = 1
		}
		if i == 2 || i == 4 {
			c.Attachments = 1
		}
	}

	var contents strings.Builder
	contents.WriteString("<html><body>\n")
	for i := len(c.Entries) - 1; i >= 0; i-- {
		e := c.Entries[i]
		fmt.Fprintf(&contents, "<a target=\"NotesView\" href=\"%s\">%s</a><br>\n", escapeName(e.File), e.Title)
		for _, r := range e.Responses {
			fmt.Fprintf(&contents, "<a target=\"NotesView\" href=\"%s\">---------- Respond: %s</a><br>\n", escapeName(r.File), r.Title)
		}
	}
	contents.WriteString("</body></html>\n")
	files["contents.html"] = []byte(contents.String())

	for rel, data := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func escapeName(name string) string {
	return strings.ReplaceAll(name, "?", "%3F")
}
