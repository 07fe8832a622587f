package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/messaging"
	"github.com/example/storefront/internal/models"
)

type sentMail struct {
	to, subject, body string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, html})
	return m.err
}

type publishedEvent struct {
	topic, key string
	event      any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{topic, key, event})
	return nil
}

func sampleOrder() *models.Order {
	return &models.Order{
		BaseModel:       models.BaseModel{ID: uuid.New()},
		OrderNumber:     "ORD-20240309-0badf00d",
		ShippingAddress: testAddress,
		PaymentMethod:   models.PaymentCOD,
		Subtotal:        decimal.NewFromInt(1200),
		DeliveryCharge:  decimal.Zero,
		Total:           decimal.NewFromInt(1200),
		Currency:        "INR",
		Lines: []models.OrderLine{{
			ProductName:     "Oud <Noir>",
			VariantSize:     "100ml",
			Quantity:        2,
			PriceAtPurchase: decimal.NewFromInt(600),
		}},
	}
}

func TestNotifierOrderPlacedFansOut(t *testing.T) {
	var (
		mu       sync.Mutex
		messages []telegramMessage
	)
	tg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botbot-token/sendMessage", r.URL.Path)
		var msg telegramMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		mu.Lock()
		messages = append(messages, msg)
		mu.Unlock()
	}))
	defer tg.Close()

	mailer := &recordingMailer{}
	events := &recordingPublisher{}
	telegram := NewTelegramService("bot-token", "-100").WithAPIURL(tg.URL)
	n := NewNotifier(mailer, telegram, events, nil)

	order := sampleOrder()
	n.OrderPlaced(context.Background(), &models.User{Email: "asha@example.com"}, order)
	n.Wait()

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "asha@example.com", mailer.sent[0].to)
	assert.Contains(t, mailer.sent[0].subject, order.OrderNumber)
	assert.Contains(t, mailer.sent[0].body, "Oud &lt;Noir&gt;")
	assert.Contains(t, mailer.sent[0].body, "1,200 INR")

	require.Len(t, messages, 1)
	assert.Equal(t, "-100", messages[0].ChatID)
	assert.Equal(t, "HTML", messages[0].ParseMode)
	assert.Contains(t, messages[0].Text, order.OrderNumber)
	assert.Contains(t, messages[0].Text, "Cash on delivery")

	require.Len(t, events.events, 1)
	assert.Equal(t, messaging.TopicOrderCreated, events.events[0].topic)
	assert.Equal(t, order.ID.String(), events.events[0].key)
	created, ok := events.events[0].event.(messaging.OrderCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, 1, created.Lines)
}

func TestNotifierSwallowsFailures(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("smtp down")}
	n := NewNotifier(mailer, nil, nil, nil)

	assert.NotPanics(t, func() {
		n.OrderPaid(context.Background(), &models.User{Email: "asha@example.com"}, sampleOrder(), "pay_1")
		n.ShipmentBooked(context.Background(), &models.Shipment{AWB: "AWB1"})
		n.Wait()
	})
	assert.Len(t, mailer.sent, 1)

	var nilNotifier *Notifier
	assert.NotPanics(t, func() {
		nilNotifier.OrderPlaced(context.Background(), nil, sampleOrder())
		nilNotifier.Wait()
	})
}

func TestTelegramDisabledWithoutConfig(t *testing.T) {
	assert.False(t, NewTelegramService("", "-100").Enabled())
	assert.False(t, NewTelegramService("token", "").Enabled())
	var nilService *TelegramService
	assert.False(t, nilService.Enabled())
	assert.NoError(t, NewTelegramService("", "").SendToAdmin(context.Background(), "hi"))
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "1,234,567.50 INR", FormatPrice(decimal.RequireFromString("1234567.5"), "INR"))
	assert.Equal(t, "999 INR", FormatPrice(decimal.NewFromInt(999), "INR"))
	assert.Equal(t, "-1,000", FormatPrice(decimal.NewFromInt(-1000), ""))
}

func TestSMTPMailerBuildsMessage(t *testing.T) {
	m := NewSMTPMailer("smtp.example.com", 2525, "user", "pass", "shop@example.com")
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, string(msg)
		return nil
	}

	require.NoError(t, m.Send(context.Background(), "asha@example.com", "Hello", "<p>hi</p>"))
	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, []string{"asha@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Hello\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html")
	assert.Contains(t, gotMsg, "\r\n\r\n<p>hi</p>")

	assert.Error(t, m.Send(context.Background(), " ", "x", "y"))
}
