package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pik-billing/internal/billing/application"
)

// ReviewWebhook posts run digests to a chat webhook.
type ReviewWebhook struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewReviewWebhook constructs a notifier.
func NewReviewWebhook(url string, timeout time.Duration) *ReviewWebhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ReviewWebhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// NotifyReview implements application.ReviewNotifier.
func (n *ReviewWebhook) NotifyReview(ctx context.Context, review application.Review) error {
	if n == nil || n.url == "" {
		return errors.New("review webhook: empty url")
	}
	body, err := json.Marshal(webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: FormatReview(review)},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("review webhook: status %d", resp.StatusCode)
	}
	return nil
}

// FormatReview renders the digest as plain text.
func FormatReview(review application.Review) string {
	var b strings.Builder
	b.WriteString("[Billing run]\n")
	fmt.Fprintf(&b, "Run: %s\n", review.RunID)
	if !review.InvoiceDate.IsZero() {
		fmt.Fprintf(&b, "Invoice date: %s\n", review.InvoiceDate.Format(invoiceDateLayout))
	}
	fmt.Fprintf(&b, "Invoices: %d\n", review.Invoices)
	fmt.Fprintf(&b, "Total: %s EUR\n", review.Total.StringFixed(2))
	if !review.NeedsAttention() {
		b.WriteString("Nothing to review.\n")
		return strings.TrimSpace(b.String())
	}
	if len(review.FlaggedAccounts) > 0 {
		fmt.Fprintf(&b, "Flagged accounts: %s\n", strings.Join(review.FlaggedAccounts, ", "))
	}
	writeList(&b, "Ledger violations", review.Violations)
	writeList(&b, "Unmatched events", review.Unmatched)
	writeList(&b, "Lines without ledger account", review.Unposted)
	return strings.TrimSpace(b.String())
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s (%d):\n", title, len(items))
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}
