// Package classify turns raw provider items into canonical documents.
// Everything in here is pure and total: unparseable input degrades to
// empty content, never an error.
package classify

import (
	"regexp"
	"strings"

	ingestdomain "mailstream-backend/internal/ingest/domain"
)

// DefaultCategory is used when no label maps to a known category.
const DefaultCategory = "unknown"

// labelCategories maps Gmail system labels to our category names.
var labelCategories = map[string]string{
	"CATEGORY_PERSONAL":   "personal",
	"CATEGORY_SOCIAL":     "social",
	"CATEGORY_PROMOTIONS": "promotions",
	"CATEGORY_UPDATES":    "updates",
	"CATEGORY_FORUMS":     "forums",
	"IMPORTANT":           "important",
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Policy decides whether a raw item should be ingested. Rejections are
// counted as skipped, not errors.
type Policy func(raw *ingestdomain.RawEmail) bool

// DefaultPolicy ingests unread mail that is not in spam, trash or drafts.
func DefaultPolicy(raw *ingestdomain.RawEmail) bool {
	if !hasLabel(raw.LabelIDs, "UNREAD") {
		return false
	}
	for _, excluded := range []string{"SPAM", "TRASH", "DRAFT"} {
		if hasLabel(raw.LabelIDs, excluded) {
			return false
		}
	}
	return true
}

// Normalize maps a raw item to a canonical document. Body preference:
// inline plain text, then HTML with tags stripped, then the provider
// snippet as a last resort.
func Normalize(raw *ingestdomain.RawEmail) *ingestdomain.Document {
	content := BodyText(raw)
	category := CategoryForLabels(raw.LabelIDs)
	isUnread := hasLabel(raw.LabelIDs, "UNREAD")

	return &ingestdomain.Document{
		Content:  content,
		Category: category,
		IsUnread: isUnread,
		ThreadID: raw.ThreadID,
		Subject:  raw.Subject,
		From:     raw.From,
		Metadata: map[string]interface{}{
			"category":    category,
			"is_unread":   isUnread,
			"thread_id":   raw.ThreadID,
			"subject":     raw.Subject,
			"from":        raw.From,
			"received_at": raw.ReceivedAt,
		},
	}
}

// BodyText extracts the canonical text of a raw item.
func BodyText(raw *ingestdomain.RawEmail) string {
	if body := collapseWhitespace(raw.PlainBody); body != "" {
		return body
	}
	if body := collapseWhitespace(StripHTML(raw.HTMLBody)); body != "" {
		return body
	}
	return collapseWhitespace(raw.Snippet)
}

// CategoryForLabels derives the document category from provider labels.
// The first label with a known mapping wins; otherwise DefaultCategory.
func CategoryForLabels(labels []string) string {
	for _, label := range labels {
		if category, ok := labelCategories[strings.ToUpper(label)]; ok {
			return category
		}
	}
	return DefaultCategory
}

// StripHTML removes tags and unescapes the common entities.
func StripHTML(html string) string {
	if html == "" {
		return ""
	}
	text := tagPattern.ReplaceAllString(html, " ")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	text = strings.ReplaceAll(text, "&#39;", "'")
	return text
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}
