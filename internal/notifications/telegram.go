package notifications

import (
	"fmt"
	"net/http"
	"net/url"

	"tangohub-backend/internal/config"
)

// SendTelegramNotification posts an operational message to the maintainers'
// Telegram chat. Best-effort: callers ignore the returned error.
func SendTelegramNotification(message string, cfg *config.Config) error {
	if cfg == nil || cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "" {
		return nil
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", cfg.Telegram.BotToken)

	resp, err := http.PostForm(endpoint, url.Values{
		"chat_id": {cfg.Telegram.ChatID},
		"text":    {message},
	})
	if err != nil {
		return fmt.Errorf("sending telegram notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}
