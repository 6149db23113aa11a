package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// ExtractText pulls readable article text out of an HTML document.
// Readability extraction runs first; pages it cannot handle (thin
// landing pages, navigation-only documents) fall back to a plain DOM
// text walk.
func ExtractText(pageURL string, body []byte) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = nil
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err == nil {
		if text := normalizeWhitespace(article.TextContent); text != "" {
			return text, nil
		}
	}

	return domText(body)
}

// domText walks the body element, skipping script and style content.
func domText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}
	doc.Find("script,style,noscript").Remove()
	return normalizeWhitespace(doc.Find("body").Text()), nil
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
