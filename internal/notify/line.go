// Package notify delivers lifecycle notifications to operators via the LINE
// Messaging API. Delivery is fire-and-forget: a failed send is logged and
// never interrupts trading.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/morinok/dipbot/internal/logging"
)

const DefaultEndpoint = "https://api.line.me/v2/bot/message/multicast"

var notifyLog = logging.New("notify")

// Notifier is the consumer-side contract for lifecycle messages.
type Notifier interface {
	Send(subject string, lines ...string)
}

type multicastRequest struct {
	To       []string          `json:"to"`
	Messages []multicastedText `json:"messages"`
}

type multicastedText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// LineNotifier pushes messages to a fixed set of LINE user ids.
type LineNotifier struct {
	Endpoint     string
	ChannelToken string
	UserIDs      []string

	client *http.Client
	now    func() time.Time
}

func NewLineNotifier(channelToken string, userIDs []string) *LineNotifier {
	return &LineNotifier{
		Endpoint:     DefaultEndpoint,
		ChannelToken: channelToken,
		UserIDs:      userIDs,
		client:       &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
	}
}

// Send delivers one message built from a short subject tag and body lines.
// Weekend sends are suppressed because the market is closed and any message
// then is a scheduling mistake, not a trading event.
func (n *LineNotifier) Send(subject string, lines ...string) {
	switch n.now().Weekday() {
	case time.Saturday, time.Sunday:
		notifyLog.Debug("suppressing weekend notification", "subject", subject)
		return
	}

	text := fmt.Sprintf("[%s]\n%s", subject, strings.Join(lines, "\n"))
	if err := n.multicast(text); err != nil {
		notifyLog.Error("notification failed", "subject", subject, "error", err)
		return
	}
	notifyLog.Info("notification sent", "subject", subject)
}

func (n *LineNotifier) multicast(text string) error {
	body, err := json.Marshal(multicastRequest{
		To:       n.UserIDs,
		Messages: []multicastedText{{Type: "text", Text: text}},
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.ChannelToken)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("multicast: status code %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Nop discards every message. Used when notifications are disabled.
type Nop struct{}

func (Nop) Send(subject string, lines ...string) {}
