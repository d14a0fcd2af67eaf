package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alejandrodnm/orbwatch/internal/domain"
)

const defaultTelegramBase = "https://api.telegram.org"

// Telegram implementa ports.Notifier sobre la Bot API (sendMessage).
type Telegram struct {
	token  string
	prefix string
	base   string
	http   *http.Client
}

// NewTelegram crea un notificador de Telegram. base vacío usa la API pública;
// prefix, si no es vacío, se antepone a cada mensaje como "[prefix] ".
func NewTelegram(token, base, prefix string) *Telegram {
	if base == "" {
		base = defaultTelegramBase
	}
	return &Telegram{
		token:  token,
		prefix: prefix,
		base:   base,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Send envía el mensaje a cada destino (chat_id) una vez.
// Un destino que falla no impide el resto; los errores se combinan.
func (t *Telegram) Send(ctx context.Context, destinations []domain.Destination, message string) error {
	if t.token == "" {
		return errors.New("notify.Telegram.Send: token missing")
	}
	if len(destinations) == 0 {
		return errors.New("notify.Telegram.Send: no destinations")
	}

	text := message
	if t.prefix != "" {
		text = fmt.Sprintf("[%s] %s", t.prefix, message)
	}

	var errs []error
	for _, dest := range destinations {
		if err := t.sendOne(ctx, dest, text); err != nil {
			errs = append(errs, fmt.Errorf("chat %s: %w", dest, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify.Telegram.Send: %w", err)
	}
	return nil
}

func (t *Telegram) sendOne(ctx context.Context, dest domain.Destination, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id": string(dest),
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.base, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(raw))
	}
	return nil
}
