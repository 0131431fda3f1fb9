package wxr

import "encoding/xml"

// Namespaces declared on the rss root.
const (
	nsWP      = "http://wordpress.org/export/1.2/"
	nsExcerpt = "http://wordpress.org/export/1.2/excerpt/"
	nsContent = "http://purl.org/rss/1.0/modules/content/"
	nsWFW     = "http://wellformedweb.org/CommentAPI/"
	nsDC      = "http://purl.org/dc/elements/1.1/"

	wxrVersion = "1.2"
	generator  = "lotuswxr"
	language   = "en-GB"

	coauthorTaxonomy   = "ssl_alp_coauthor"
	coauthorSlugPrefix = "ssl-alp-coauthor-"

	pubDateLayout  = "Mon, 02 Jan 2006 15:04:05 -0700"
	postDateLayout = "2006-01-02 15:04:05"
)

func rssStart() xml.StartElement {
	attr := func(name, value string) xml.Attr {
		return xml.Attr{Name: xml.Name{Local: name}, Value: value}
	}
	return xml.StartElement{
		Name: xml.Name{Local: "rss"},
		Attr: []xml.Attr{
			attr("version", "2.0"),
			attr("xmlns:excerpt", nsExcerpt),
			attr("xmlns:content", nsContent),
			attr("xmlns:wfw", nsWFW),
			attr("xmlns:dc", nsDC),
			attr("xmlns:wp", nsWP),
		},
	}
}

// cdata marshals its text inside a CDATA section.
type cdata struct {
	Text string `xml:",cdata"`
}

type wpAuthor struct {
	XMLName     xml.Name `xml:"wp:author"`
	ID          cdata    `xml:"wp:author_id"`
	Login       cdata    `xml:"wp:author_login"`
	Email       cdata    `xml:"wp:author_email"`
	DisplayName cdata    `xml:"wp:author_display_name"`
	FirstName   cdata    `xml:"wp:author_first_name"`
	LastName    cdata    `xml:"wp:author_last_name"`
}

type wpTerm struct {
	XMLName  xml.Name `xml:"wp:term"`
	ID       cdata    `xml:"wp:term_id"`
	Taxonomy cdata    `xml:"wp:term_taxonomy"`
	Slug     cdata    `xml:"wp:term_slug"`
	Parent   cdata    `xml:"wp:term_parent"`
	Name     cdata    `xml:"wp:term_name"`
}

type wpCategory struct {
	XMLName  xml.Name `xml:"wp:category"`
	TermID   int      `xml:"wp:term_id"`
	Nicename cdata    `xml:"wp:category_nicename"`
	Parent   cdata    `xml:"wp:category_parent"`
	Name     cdata    `xml:"wp:cat_name"`
}

type guid struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type itemCategory struct {
	Domain   string `xml:"domain,attr"`
	Nicename string `xml:"nicename,attr"`
	Name     string `xml:",cdata"`
}

type postMeta struct {
	Key   cdata `xml:"wp:meta_key"`
	Value cdata `xml:"wp:meta_value"`
}

type wpComment struct {
	ID          int    `xml:"wp:comment_id"`
	Author      cdata  `xml:"wp:comment_author"`
	AuthorEmail string `xml:"wp:comment_author_email"`
	AuthorURL   string `xml:"wp:comment_author_url"`
	AuthorIP    string `xml:"wp:comment_author_IP"`
	Date        cdata  `xml:"wp:comment_date"`
	DateGMT     cdata  `xml:"wp:comment_date_gmt"`
	Content     cdata  `xml:"wp:comment_content"`
	Approved    string `xml:"wp:comment_approved"`
	Type        string `xml:"wp:comment_type"`
	Parent      int    `xml:"wp:comment_parent"`
	UserID      int    `xml:"wp:comment_user_id"`
}

// item is a post or an attachment.
type item struct {
	XMLName       xml.Name       `xml:"item"`
	Title         cdata          `xml:"title"`
	Link          string         `xml:"link"`
	PubDate       string         `xml:"pubDate"`
	Creator       cdata          `xml:"dc:creator"`
	GUID          guid           `xml:"guid"`
	Description   cdata          `xml:"description"`
	Content       cdata          `xml:"content:encoded"`
	Excerpt       cdata          `xml:"excerpt:encoded"`
	PostID        int            `xml:"wp:post_id"`
	PostDate      cdata          `xml:"wp:post_date"`
	PostDateGMT   cdata          `xml:"wp:post_date_gmt"`
	CommentStatus cdata          `xml:"wp:comment_status"`
	PingStatus    cdata          `xml:"wp:ping_status"`
	PostName      cdata          `xml:"wp:post_name"`
	Status        cdata          `xml:"wp:status"`
	PostParent    int            `xml:"wp:post_parent"`
	MenuOrder     int            `xml:"wp:menu_order"`
	PostType      cdata          `xml:"wp:post_type"`
	PostPassword  string         `xml:"wp:post_password"`
	IsSticky      int            `xml:"wp:is_sticky"`
	AttachmentURL *cdata         `xml:"wp:attachment_url,omitempty"`
	PostMeta      []postMeta     `xml:"wp:postmeta"`
	Categories    []itemCategory `xml:"category"`
	Comments      []wpComment    `xml:"wp:comment"`
}
