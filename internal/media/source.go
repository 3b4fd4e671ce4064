package media

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// videoRef names where a video lives: a platform label and the
// platform's own identifier for it.
type videoRef struct {
	Platform string
	ID       string
}

// platform matches a host suffix and pulls the video id out of a URL.
type platform struct {
	name  string
	hosts []string
	id    func(u *url.URL) string
}

var platforms = []platform{
	{
		name:  "youtube",
		hosts: []string{"youtube.com", "youtu.be"},
		id: func(u *url.URL) string {
			switch {
			case hostIs(u, "youtu.be"):
				return strings.Trim(u.Path, "/")
			case strings.HasPrefix(u.Path, "/shorts/"), strings.HasPrefix(u.Path, "/embed/"):
				return path.Base(u.Path)
			}
			return u.Query().Get("v")
		},
	},
	{
		name:  "vimeo",
		hosts: []string{"vimeo.com"},
		id:    func(u *url.URL) string { return strings.Trim(u.Path, "/") },
	},
	{
		name:  "twitch",
		hosts: []string{"twitch.tv"},
		id:    func(u *url.URL) string { return strings.TrimPrefix(u.Path, "/videos/") },
	},
}

// identifyVideo classifies rawURL. Unknown hosts use the bare host name
// as the platform and the last path segment as the id.
func identifyVideo(rawURL string) videoRef {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return videoRef{Platform: "unknown"}
	}
	for _, p := range platforms {
		for _, h := range p.hosts {
			if hostIs(u, h) {
				return videoRef{Platform: p.name, ID: p.id(u)}
			}
		}
	}

	ref := videoRef{Platform: strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")}
	if last := path.Base(strings.TrimRight(u.Path, "/")); last != "." && last != "/" {
		ref.ID = last
	}
	return ref
}

// hostIs reports whether u's host is domain or a subdomain of it.
func hostIs(u *url.URL, domain string) bool {
	host := strings.ToLower(u.Hostname())
	return host == domain || strings.HasSuffix(host, "."+domain)
}

var unsafeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitizeFilename(s string) string {
	return unsafeFilenameRe.ReplaceAllString(s, "_")
}

// formatDuration renders seconds as M:SS, or H:MM:SS past an hour.
func formatDuration(seconds float64) string {
	total := int(seconds)
	h, m, s := total/3600, total/60%60, total%60
	if h == 0 {
		return fmt.Sprintf("%d:%02d", m, s)
	}
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

// formatDate turns yt-dlp's YYYYMMDD into YYYY-MM-DD. Anything else is
// returned unchanged.
func formatDate(d string) string {
	if len(d) != 8 {
		return d
	}
	return fmt.Sprintf("%s-%s-%s", d[:4], d[4:6], d[6:])
}
