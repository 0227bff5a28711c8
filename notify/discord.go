package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aluiziolira/stockwatch/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var categoryColors = map[models.TransitionKind]int{
	models.NewProduct:         0xFFFF00,
	models.BackInStock:        0x00FF00,
	models.BecamePreorderable: 0x1E90FF,
}

// Discord posts transitions as embeds to a Discord webhook.
type Discord struct {
	url    string
	client *http.Client
	footer string
}

// DiscordOption configures a Discord notifier.
type DiscordOption func(*Discord)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) DiscordOption {
	return func(d *Discord) { d.client = c }
}

// WithFooter sets the embed footer text.
func WithFooter(text string) DiscordOption {
	return func(d *Discord) { d.footer = text }
}

// NewDiscord creates a notifier posting to webhookURL.
func NewDiscord(webhookURL string, opts ...DiscordOption) *Discord {
	d := &Discord{
		url:    webhookURL,
		client: &http.Client{Timeout: 10 * time.Second},
		footer: "Hurry before it sells out!",
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title  string         `json:"title"`
	URL    string         `json:"url,omitempty"`
	Color  int            `json:"color"`
	Fields []discordField `json:"fields"`
	Footer *discordFooter `json:"footer,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

func (d *Discord) embed(t models.Transition) discordEmbed {
	price := t.Record.Price
	if price == "" {
		price = "Unknown"
	}
	site := t.Record.SiteName
	if site == "" {
		site = "-"
	}
	e := discordEmbed{
		Title: cases.Title(language.Und).String(t.Name),
		URL:   t.Record.URL,
		Color: categoryColors[t.Kind],
		Fields: []discordField{
			{Name: "Price", Value: price, Inline: true},
			{Name: "Status", Value: Category(t.Kind), Inline: true},
			{Name: "Site", Value: site, Inline: false},
		},
	}
	if d.footer != "" {
		e.Footer = &discordFooter{Text: d.footer}
	}
	return e
}

// Notify posts one embed. Discord answers 204 on success.
func (d *Discord) Notify(ctx context.Context, t models.Transition) error {
	body, err := json.Marshal(discordPayload{Embeds: []discordEmbed{d.embed(t)}})
	if err != nil {
		return fmt.Errorf("discord: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord: status %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}
	return nil
}
