package docs

import "regexp"

var docURLPattern = regexp.MustCompile(`/document/d/([a-zA-Z0-9-_]+)`)

// IDFromURL extracts the document id from an editor URL such as
// https://docs.google.com/document/d/<id>/edit.
func IDFromURL(url string) (string, bool) {
	match := docURLPattern.FindStringSubmatch(url)
	if match == nil {
		return "", false
	}
	return match[1], true
}
