package source

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"
)

var (
	reRow       = regexp.MustCompile(`(?s)<tr[^>]*>(.*?)</tr>`)
	reCategory  = regexp.MustCompile(`<a href="/c/[^"]*" title="([^"]*)"`)
	reComments  = regexp.MustCompile(`fa-comments[^<]*</i>(\d+)</a>`)
	reTitle     = regexp.MustCompile(`<a href="/view/(\d+)" title="([^"]*)"`)
	reTitleBare = regexp.MustCompile(`(?s)<a href="/view/(\d+)">(.*?)</a>`)
	reDownload  = regexp.MustCompile(`/download/(\d+)`)
	reMagnet    = regexp.MustCompile(`href="(magnet:\?xt[^"]*)"`)
	reCenterTD  = regexp.MustCompile(`(?s)<td class="text-center"([^>]*)>(.*?)</td>`)
	reTDStamp   = regexp.MustCompile(`data-timestamp="(\d+)"`)
	reNextPage  = regexp.MustCompile(`<(?:li|a)[^>]*rel="next"`)

	reCommentUser    = regexp.MustCompile(`<a[^>]*href="/user/[^"]*"[^>]*title="([^"]*)"[^>]*>([^<]*)</a>`)
	reCommentAvatar  = regexp.MustCompile(`<img class="avatar" src="([^"]*)"`)
	reCommentAnchor  = regexp.MustCompile(`<a href="(#com-\d+)"><small data-timestamp="(\d+)"`)
	reCommentEdited  = regexp.MustCompile(`data-timestamp="(\d+)"[^>]*>\s*\(edited\)`)
	reCommentContent = regexp.MustCompile(`(?s)class="comment-content"[^>]*>(.*?)</div>`)
	reMarkdownImage  = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]*)\)`)

	reSubmitter = regexp.MustCompile(`(?s)<div class="col-md-1">Submitter:</div>\s*<div class="col-md-5">(.*?)</div>`)
	reUserHref  = regexp.MustCompile(`href="/user/([^"]*)"`)
	reOGImage   = regexp.MustCompile(`<meta property="og:image" content="([^">]*)"`)
)

// ParseFeed extracts torrent snapshots from one feed/listing page and
// reports whether a further page exists. Rows that do not carry the
// expected cells (header rows, ads) are skipped.
func ParseFeed(body []byte, domain string) ([]nyaa.Torrent, bool, error) {
	doc := string(body)
	if !strings.HasPrefix(doc, "<!DOCTYPE html>") {
		return nil, false, ErrNotHTML
	}

	var torrents []nyaa.Torrent
	for _, m := range reRow.FindAllStringSubmatch(doc, -1) {
		row := m[1]
		t, ok := parseFeedRow(row, domain)
		if !ok {
			continue
		}
		torrents = append(torrents, t)
	}
	return torrents, reNextPage.MatchString(doc), nil
}

func parseFeedRow(row, domain string) (nyaa.Torrent, bool) {
	t := nyaa.Torrent{Domain: domain}

	if m := reTitle.FindStringSubmatch(row); m != nil {
		t.ID, _ = strconv.ParseUint(m[1], 10, 64)
		t.Title = html.UnescapeString(m[2])
	} else if m := reTitleBare.FindStringSubmatch(row); m != nil && !strings.Contains(m[0], "#comments") {
		t.ID, _ = strconv.ParseUint(m[1], 10, 64)
		t.Title = html.UnescapeString(strings.TrimSpace(m[2]))
	}
	if t.ID == 0 {
		if m := reDownload.FindStringSubmatch(row); m != nil {
			t.ID, _ = strconv.ParseUint(m[1], 10, 64)
		}
	}
	if t.ID == 0 || t.Title == "" {
		return nyaa.Torrent{}, false
	}

	if m := reCategory.FindStringSubmatch(row); m != nil {
		t.Category = html.UnescapeString(m[1])
	}
	if m := reComments.FindStringSubmatch(row); m != nil {
		t.CommentCount, _ = strconv.Atoi(m[1])
	}
	if m := reMagnet.FindStringSubmatch(row); m != nil {
		t.MagnetLink = html.UnescapeString(m[1])
	}

	// Plain text-center cells appear in feed order:
	// size, date, seeders, leechers, completed.
	var plain int
	for _, td := range reCenterTD.FindAllStringSubmatch(row, -1) {
		attrs, inner := td[1], strings.TrimSpace(td[2])
		if strings.Contains(inner, "<a") {
			continue
		}
		switch plain {
		case 0:
			t.Size = inner
		case 1:
			if m := reTDStamp.FindStringSubmatch(attrs); m != nil {
				t.UploadedAt, _ = strconv.ParseInt(m[1], 10, 64)
			}
		case 2:
			t.Seeders, _ = strconv.ParseUint(inner, 10, 64)
		case 3:
			t.Leechers, _ = strconv.ParseUint(inner, 10, 64)
		case 4:
			t.Completed, _ = strconv.ParseUint(inner, 10, 64)
		}
		plain++
	}
	if plain < 5 {
		return nyaa.Torrent{}, false
	}
	return t, true
}

// ParseTorrentPage extracts the comment thread and the uploader from a
// torrent view page. Comments come back in thread order with no
// lifecycle state assigned; classification is the reconciler's job.
func ParseTorrentPage(body []byte, pageURL, domain string) ([]nyaa.Comment, *nyaa.User, error) {
	doc := string(body)
	if !strings.HasPrefix(doc, "<!DOCTYPE html>") {
		return nil, nil, ErrNotHTML
	}

	uploader := parseSubmitter(doc, domain)

	var comments []nyaa.Comment
	parts := strings.Split(doc, `<div class="panel panel-default comment-panel"`)
	for _, part := range parts[1:] {
		c, ok := parseCommentPanel(part, pageURL, domain)
		if !ok {
			continue
		}
		comments = append(comments, c)
	}
	return comments, uploader, nil
}

func parseCommentPanel(part, pageURL, domain string) (nyaa.Comment, bool) {
	var c nyaa.Comment

	if m := reCommentUser.FindStringSubmatch(part); m != nil {
		c.User = nyaa.User{
			Username: strings.TrimSpace(m[2]),
			Role:     m[1],
			Banned:   strings.Contains(m[1], "BANNED"),
		}
	}
	if c.User.Username == "" {
		return nyaa.Comment{}, false
	}
	if m := reCommentAvatar.FindStringSubmatch(part); m != nil {
		c.User.Avatar = absoluteURL(m[1], domain)
	}
	if m := reCommentAnchor.FindStringSubmatch(part); m != nil {
		c.DirectLink = pageURL + m[1]
		c.CreatedAt, _ = strconv.ParseInt(m[2], 10, 64)
	}
	if c.CreatedAt == 0 {
		return nyaa.Comment{}, false
	}
	if m := reCommentEdited.FindStringSubmatch(part); m != nil {
		c.EditedAt, _ = strconv.ParseInt(m[1], 10, 64)
	}
	c.Uploader = strings.Contains(part, "(uploader)")

	m := reCommentContent.FindStringSubmatch(part)
	if m == nil {
		return nyaa.Comment{}, false
	}
	msg := strings.TrimSpace(m[1])
	// Inline image markdown renders as noise in notifications; keep the
	// alt text and target, drop the punctuation.
	msg = reMarkdownImage.ReplaceAllString(msg, "$1$2")
	c.Message = html.UnescapeString(msg)
	return c, true
}

func parseSubmitter(doc, domain string) *nyaa.User {
	role := "User"
	if strings.Contains(doc, `<div class="panel panel-success">`) {
		role = "Trusted"
	}

	m := reSubmitter.FindStringSubmatch(doc)
	if m == nil {
		anon := nyaa.AnonymousUser(domain)
		return &anon
	}
	inner := m[1]
	if um := reCommentUser.FindStringSubmatch(inner); um != nil {
		return &nyaa.User{
			Username: strings.TrimSpace(um[2]),
			Role:     um[1],
			Banned:   strings.Contains(um[1], "BANNED"),
		}
	}
	if um := reUserHref.FindStringSubmatch(inner); um != nil {
		// Link without a tooltip role.
		return &nyaa.User{Username: um[1], Role: role}
	}
	anon := nyaa.AnonymousUser(domain)
	return &anon
}

// ParseUserPage resolves the avatar URL advertised by a profile page.
func ParseUserPage(body []byte, domain string) (string, error) {
	doc := string(body)
	if !strings.HasPrefix(doc, "<!DOCTYPE html>") {
		return "", ErrNotHTML
	}
	m := reOGImage.FindStringSubmatch(doc)
	if m == nil {
		return "", nil
	}
	return absoluteURL(m[1], domain), nil
}

func absoluteURL(u, domain string) string {
	if strings.HasPrefix(u, "/") {
		return strings.TrimSuffix(domain, "/") + u
	}
	return u
}
