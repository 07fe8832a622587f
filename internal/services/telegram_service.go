package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramService sends notifications to the shop admins' Telegram chat.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiURL      string
	client      *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiURL:      defaultTelegramAPI,
		client:      newHTTPClient(10 * time.Second),
	}
}

// WithAPIURL points the service at another Bot API host.
func (s *TelegramService) WithAPIURL(apiURL string) *TelegramService {
	s.apiURL = strings.TrimRight(apiURL, "/")
	return s
}

// Enabled reports whether both the bot token and the admin chat are set.
func (s *TelegramService) Enabled() bool {
	return s != nil && s.botToken != "" && s.adminChatID != ""
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends an HTML-formatted message to chatID.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(telegramMessage{ChatID: chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// SendToAdmin sends a message to the admin chat. It is a no-op when the
// service is not configured.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if !s.Enabled() {
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// OrderNotification contains order data for the admin chat.
type OrderNotification struct {
	OrderNumber   string
	Items         []OrderItemNotification
	Total         decimal.Decimal
	Currency      string
	CustomerName  string
	CustomerPhone string
	PaymentMethod string
	City          string
}

type OrderItemNotification struct {
	Name     string
	Size     string
	Quantity int
	Price    decimal.Decimal
}

// FormatPrice formats an amount with thousand separators and the currency code.
func FormatPrice(amount decimal.Decimal, currency string) string {
	whole := amount.Truncate(0)
	str := whole.Abs().String()

	var result strings.Builder
	if amount.IsNegative() {
		result.WriteByte('-')
	}
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result.WriteByte(',')
		}
		result.WriteRune(digit)
	}
	if frac := amount.Sub(whole).Abs(); !frac.IsZero() {
		result.WriteString(strings.TrimPrefix(frac.StringFixed(2), "0"))
	}
	if currency != "" {
		result.WriteString(" " + currency)
	}
	return result.String()
}

// NotifyNewOrder tells the admins about a placed order.
func (s *TelegramService) NotifyNewOrder(ctx context.Context, order OrderNotification) error {
	if !s.Enabled() {
		return nil
	}

	var items strings.Builder
	for i, item := range order.Items {
		lineTotal := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		fmt.Fprintf(&items, "%d. <b>%s</b> (%s)\n   %d x %s = %s\n",
			i+1,
			html.EscapeString(item.Name),
			html.EscapeString(item.Size),
			item.Quantity,
			FormatPrice(item.Price, order.Currency),
			FormatPrice(lineTotal, order.Currency),
		)
	}

	payment := "Cash on delivery"
	if order.PaymentMethod == "ONLINE" {
		payment = "Online"
	}

	message := fmt.Sprintf(`<b>🛒 NEW ORDER</b>
<b>Order:</b> %s
<b>Customer:</b> %s
<b>Phone:</b> %s
<b>City:</b> %s
<b>Items:</b>
%s
<b>Total:</b> %s
<b>Payment:</b> %s`,
		html.EscapeString(order.OrderNumber),
		html.EscapeString(order.CustomerName),
		html.EscapeString(order.CustomerPhone),
		html.EscapeString(order.City),
		items.String(),
		FormatPrice(order.Total, order.Currency),
		payment,
	)

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}

// NotifyPaymentReceived tells the admins an online payment was verified.
func (s *TelegramService) NotifyPaymentReceived(ctx context.Context, orderNumber, paymentID string, amount decimal.Decimal, currency string) error {
	if !s.Enabled() {
		return nil
	}
	message := fmt.Sprintf(`<b>✅ PAYMENT RECEIVED</b>
<b>Order:</b> %s
<b>Payment:</b> %s
<b>Amount:</b> %s`,
		html.EscapeString(orderNumber),
		html.EscapeString(paymentID),
		FormatPrice(amount, currency),
	)
	return s.SendToAdmin(ctx, message)
}
