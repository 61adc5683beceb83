package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"CryptoWatch/internal/model"
)

// pollRetryDelay is the pause after a failed or rejected getUpdates call.
const pollRetryDelay = 5 * time.Second

// CommandHandler is called when a user command is received.
type CommandHandler func(ctx context.Context, command string) string

// PriceLister is the read side of the store used by chat commands.
type PriceLister interface {
	List(ctx context.Context) ([]model.PriceRecord, error)
}

// PriceCommands answers /prices and /price <symbol> from the store.
func PriceCommands(st PriceLister) CommandHandler {
	return func(ctx context.Context, command string) string {
		fields := strings.Fields(command)
		if len(fields) == 0 {
			return ""
		}
		cmd := strings.SplitN(fields[0], "@", 2)[0]
		switch cmd {
		case "/prices", "/price":
			recs, err := st.List(ctx)
			if err != nil {
				log.Printf("[ERROR] list prices: %v", err)
				return "Prices are unavailable right now."
			}
			if cmd == "/price" && len(fields) > 1 {
				want := strings.ToLower(fields[1])
				var match []model.PriceRecord
				for _, r := range recs {
					if r.Symbol == want {
						match = append(match, r)
					}
				}
				if len(match) == 0 {
					return fmt.Sprintf("No price stored for %s.", want)
				}
				recs = match
			}
			return FormatPriceTable(recs)
		default:
			return "Available commands:\n/prices\n/price <symbol>"
		}
	}
}

// telegramUpdate represents a Telegram update from long polling.
type telegramUpdate struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// StartPolling begins long-polling for Telegram commands. Blocks until ctx is cancelled.
// Only messages from the configured chat are answered.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	offset := 0
	client := &http.Client{Timeout: 35 * time.Second}
	if t.Client != nil && t.Client.Transport != nil {
		client.Transport = t.Client.Transport
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("[INFO] Telegram polling stopped")
			return
		default:
		}

		apiURL := fmt.Sprintf("%s/bot%s/getUpdates?offset=%d&timeout=30", t.BaseURL, t.BotToken, offset)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			log.Printf("[ERROR] create polling request: %v", err)
			sleepCtx(ctx, pollRetryDelay)
			continue
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[WARN] polling request failed: %v", err)
			sleepCtx(ctx, pollRetryDelay)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			log.Printf("[WARN] read polling response: %v", err)
			sleepCtx(ctx, pollRetryDelay)
			continue
		}

		var result struct {
			OK          bool             `json:"ok"`
			Description string           `json:"description"`
			Result      []telegramUpdate `json:"result"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			log.Printf("[WARN] decode polling response: %v", err)
			sleepCtx(ctx, pollRetryDelay)
			continue
		}
		if resp.StatusCode != http.StatusOK || !result.OK {
			log.Printf("[WARN] getUpdates rejected: status %d, %s", resp.StatusCode, result.Description)
			sleepCtx(ctx, pollRetryDelay)
			continue
		}

		for _, update := range result.Result {
			offset = update.UpdateID + 1
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			if fmt.Sprint(update.Message.Chat.ID) != t.ChatID {
				continue
			}
			text := strings.TrimSpace(update.Message.Text)
			log.Printf("[INFO] received command: %s", text)
			reply := handler(ctx, text)
			if reply != "" {
				if err := t.SendText(ctx, reply); err != nil {
					log.Printf("[ERROR] send reply: %v", err)
				}
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
