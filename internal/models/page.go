// Package models defines the intermediate archive records and search result types.
package models

import (
	"encoding/xml"
	"path"
	"strings"
)

// PageRecord is the on-disk form of one archived page (pages/<hash>.xml).
type PageRecord struct {
	XMLName     xml.Name       `xml:"document"`
	Title       string         `xml:"title"`
	Page        string         `xml:"page"`
	Created     int64          `xml:"created"`
	Authors     AuthorList     `xml:"authors"`
	Categories  CategoryList   `xml:"categories"`
	Content     string         `xml:"content"`
	Attachments AttachmentList `xml:"attachments"`
	Images      ImageList      `xml:"images"`
	URLs        URLList        `xml:"urls"`
	Responses   ResponseList   `xml:"responses"`
}

// ResponseRecord is a threaded reply nested inside its parent page.
type ResponseRecord struct {
	Created int64      `xml:"created"`
	Authors AuthorList `xml:"authors"`
	Content string     `xml:"content"`
}

// MediaRef points at an archived media file. The element text is the content hash
// used as placeholder in page content.
type MediaRef struct {
	// Path is relative to the pages directory, e.g. "media/<hash>.png".
	Path    string `xml:"path,attr"`
	Name    string `xml:"name,attr,omitempty"`
	Mime    string `xml:"mime,attr,omitempty"`
	Created int64  `xml:"created,attr,omitempty"`
	Hash    string `xml:",chardata"`
}

// FileName returns the archived filename.
func (m MediaRef) FileName() string {
	return path.Base(m.Path)
}

// URLRef is a cross-reference to another archived page. The element text is the hash
// written into the content, which may be the hash of a duplicate's path.
type URLRef struct {
	// Path is the target page file relative to the pages directory, e.g. "<hash>.xml".
	Path string `xml:"path,attr"`
	Hash string `xml:",chardata"`
}

// TargetKey returns the archive key of the referenced page.
func (u URLRef) TargetKey() string {
	return strings.TrimSuffix(path.Base(u.Path), PageExt)
}

type AuthorList struct {
	Items []string `xml:"author"`
}

type CategoryList struct {
	Items []string `xml:"category"`
}

type AttachmentList struct {
	Items []MediaRef `xml:"attachment"`
}

type ImageList struct {
	Items []MediaRef `xml:"image"`
}

type URLList struct {
	Items []URLRef `xml:"url"`
}

type ResponseList struct {
	Items []ResponseRecord `xml:"response"`
}

// FirstAuthor returns the first non-empty author, or "" when there is none.
func (l AuthorList) FirstAuthor() string {
	if len(l.Items) == 0 {
		return ""
	}
	return strings.TrimSpace(l.Items[0])
}
